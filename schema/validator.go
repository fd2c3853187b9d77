package recordschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed record.schema.json
var recordSchemaJSON string

// RecordPayload is the submission envelope for one normalized record.
type RecordPayload struct {
	PayloadVersion string  `json:"payload_version"`
	Kind           string  `json:"kind"`
	Source         string  `json:"source"`
	SourceItemID   string  `json:"source_item_id"`
	SourceURL      *string `json:"source_url,omitempty"`
	Title          *string `json:"title,omitempty"`
	OrgName        string  `json:"org_name"`
	OrgID          *int64  `json:"org_id,omitempty"`
	City           *string `json:"city,omitempty"`
	Province       *string `json:"province,omitempty"`
	Description    *string `json:"description,omitempty"`
	Industry       *string `json:"industry,omitempty"`
	Website        *string `json:"website,omitempty"`
	ContactEmail   *string `json:"contact_email,omitempty"`
	ContactPhone   *string `json:"contact_phone,omitempty"`
	EmployeeCount  *int    `json:"employee_count,omitempty"`
	Language       *string `json:"language,omitempty"`
	PostedAt       string  `json:"posted_at"`
	QualityScore   *int    `json:"quality_score,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateRecordPayload(payload json.RawMessage) (*RecordPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var record RecordPayload
	if err := json.Unmarshal(normalized, &record); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&record); err != nil {
		return nil, err
	}

	return &record, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("record.schema.json", strings.NewReader(recordSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("record.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(record *RecordPayload) error {
	if record == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(record.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(record.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(record.SourceItemID) == "" {
		return fmt.Errorf("source_item_id must not be empty")
	}
	if strings.TrimSpace(record.OrgName) == "" {
		return fmt.Errorf("org_name must not be empty")
	}

	switch record.Kind {
	case "job":
		if record.Title == nil || strings.TrimSpace(*record.Title) == "" {
			return fmt.Errorf("title must not be empty for job records")
		}
	case "organization":
	default:
		return fmt.Errorf("kind must be job or organization, got %q", record.Kind)
	}

	if _, err := time.Parse(time.RFC3339, strings.TrimSpace(record.PostedAt)); err != nil {
		return fmt.Errorf("posted_at must be RFC3339: %w", err)
	}

	if record.QualityScore != nil && (*record.QualityScore < 0 || *record.QualityScore > 100) {
		return fmt.Errorf("quality_score must be within [0,100]")
	}
	if record.EmployeeCount != nil && *record.EmployeeCount < 0 {
		return fmt.Errorf("employee_count must not be negative")
	}

	if record.SourceURL != nil {
		if err := validateURI("source_url", *record.SourceURL); err != nil {
			return err
		}
	}
	if record.Website != nil {
		if err := validateURI("website", *record.Website); err != nil {
			return err
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
