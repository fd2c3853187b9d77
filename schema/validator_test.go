package recordschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateRecordPayload_ValidJob(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"job",
		"source":"aggregator",
		"source_item_id":"agg-9912",
		"source_url":"https://jobs.example.com/9912",
		"title":"Senior Developer",
		"org_name":"Takealot Group Ltd",
		"city":"Cape Town",
		"province":"Western Cape",
		"description":"Build and operate services in Go.",
		"posted_at":"2026-03-01T08:00:00Z",
		"quality_score":74
	}`)

	record, err := ValidateRecordPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if record.Kind != "job" {
		t.Fatalf("expected kind=job, got %q", record.Kind)
	}
	if record.Title == nil || *record.Title != "Senior Developer" {
		t.Fatalf("title not carried through: %+v", record.Title)
	}
}

func TestValidateRecordPayload_ValidOrganization(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"organization",
		"source":"company-site",
		"source_item_id":"org-81",
		"org_name":"Standard Bank",
		"province":"Gauteng",
		"industry":"Banking",
		"website":"https://standardbank.co.za",
		"employee_count":50000,
		"posted_at":"2026-03-01T08:00:00Z"
	}`)

	record, err := ValidateRecordPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	if record.EmployeeCount == nil || *record.EmployeeCount != 50000 {
		t.Fatalf("employee_count not carried through: %+v", record.EmployeeCount)
	}
}

func TestValidateRecordPayload_JobWithoutTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"job",
		"source":"aggregator",
		"source_item_id":"agg-1",
		"org_name":"Acme",
		"posted_at":"2026-03-01T08:00:00Z"
	}`)

	if _, err := ValidateRecordPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for job without title")
	}
}

func TestValidateRecordPayload_UnknownKind(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"person",
		"source":"aggregator",
		"source_item_id":"agg-1",
		"org_name":"Acme",
		"posted_at":"2026-03-01T08:00:00Z"
	}`)

	if _, err := ValidateRecordPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for unknown kind")
	}
}

func TestValidateRecordPayload_BadPostedAt(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"organization",
		"source":"aggregator",
		"source_item_id":"agg-1",
		"org_name":"Acme",
		"posted_at":"yesterday"
	}`)

	if _, err := ValidateRecordPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for non-RFC3339 posted_at")
	}
}

func TestValidateRecordPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"organization",
		"source":"aggregator",
		"source_item_id":"agg-1",
		"org_name":"Acme",
		"posted_at":"2026-03-01T08:00:00Z"
	}{}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing content error, got %v", err)
	}
}

func TestValidateRecordPayload_QualityOutOfRange(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"kind":"organization",
		"source":"aggregator",
		"source_item_id":"agg-1",
		"org_name":"Acme",
		"posted_at":"2026-03-01T08:00:00Z",
		"quality_score":140
	}`)

	if _, err := ValidateRecordPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for out-of-range quality score")
	}
}
