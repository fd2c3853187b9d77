package fingerprint

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"horse.fit/jobsift/internal/entity"
)

func jobRecord(title, org, city, province, description string) *entity.Record {
	return &entity.Record{
		ID:           1,
		Kind:         entity.KindJob,
		Source:       "aggregator",
		Title:        title,
		OrgName:      org,
		City:         city,
		Province:     province,
		Description:  description,
		PostedAt:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		QualityScore: 70,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(DefaultShingleSize, 64)
	rec := jobRecord("Senior Developer", "Google", "Cape Town", "Western Cape", "Build distributed systems at scale for our search team.")

	a := gen.Fingerprint(rec)
	b := gen.Fingerprint(rec)
	if !bytes.Equal(a.ExactHash, b.ExactHash) {
		t.Fatalf("exact hash not deterministic")
	}
	for i := range a.Sketch {
		if a.Sketch[i] != b.Sketch[i] {
			t.Fatalf("sketch slot %d not deterministic", i)
		}
	}
}

func TestExactHash_IgnoresLegalSuffixAndCompanyInTitle(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(DefaultShingleSize, 64)
	a := gen.Fingerprint(jobRecord("Senior Developer", "Google", "Cape Town", "Western Cape", ""))
	b := gen.Fingerprint(jobRecord("Senior Developer - Google", "Google (Pty) Ltd", "Cape Town", "Western Cape", ""))

	if !a.ExactEqual(b) {
		t.Fatalf("expected identical exact hashes for suffix/company variants")
	}

	c := gen.Fingerprint(jobRecord("Senior Developer", "Google", "Johannesburg", "Gauteng", ""))
	if a.ExactEqual(c) {
		t.Fatalf("different city must not share exact hash")
	}
}

func TestExactHash_KindsNeverCollide(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(DefaultShingleSize, 64)
	org := &entity.Record{
		ID:       2,
		Kind:     entity.KindOrganization,
		Source:   "cipc",
		OrgName:  "Google",
		Province: "Western Cape",
		PostedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	job := jobRecord("Google", "Google", "", "Western Cape", "")

	if gen.Fingerprint(job).ExactEqual(gen.Fingerprint(org)) {
		t.Fatalf("job and organization hashes must differ")
	}
}

func TestSketch_EmptyTextIsSentinel(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(DefaultShingleSize, 64)
	empty := gen.Fingerprint(jobRecord("Senior Developer", "Google", "Cape Town", "Western Cape", ""))
	if !IsSentinel(empty.Sketch) {
		t.Fatalf("empty description must yield sentinel sketch")
	}

	real := gen.Fingerprint(jobRecord("Senior Developer", "Google", "Cape Town", "Western Cape", "A role building payment systems in Go."))
	if IsSentinel(real.Sketch) {
		t.Fatalf("non-empty description must not be sentinel")
	}
	if EstimateJaccard(empty.Sketch, real.Sketch) != 0 {
		t.Fatalf("sentinel sketch must never match a real sketch")
	}
	if EstimateJaccard(empty.Sketch, empty.Sketch) != 0 {
		t.Fatalf("two sentinel sketches must not match each other")
	}
}

func TestEstimateJaccard_TracksTextSimilarity(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(DefaultShingleSize, 128)
	base := "We are hiring a senior developer to build and operate distributed payment systems in Go. " +
		"You will own services end to end, from design through production support, working with Postgres and Kafka."
	nearDup := strings.Replace(base, "senior developer", "senior engineer", 1)
	unrelated := "Office administrator needed for a busy dental practice. Duties include reception, filing and scheduling patient appointments."

	a := gen.Fingerprint(jobRecord("Senior Developer", "Acme", "Cape Town", "Western Cape", base))
	b := gen.Fingerprint(jobRecord("Senior Engineer", "Acme", "Cape Town", "Western Cape", nearDup))
	c := gen.Fingerprint(jobRecord("Office Administrator", "Smiles", "Durban", "KwaZulu-Natal", unrelated))

	same := EstimateJaccard(a.Sketch, a.Sketch)
	near := EstimateJaccard(a.Sketch, b.Sketch)
	far := EstimateJaccard(a.Sketch, c.Sketch)

	if same != 1 {
		t.Fatalf("identical sketches must estimate 1.0, got %f", same)
	}
	if near <= far {
		t.Fatalf("near-duplicate estimate (%f) must exceed unrelated estimate (%f)", near, far)
	}
	if near < 0.4 {
		t.Fatalf("near-duplicate estimate unexpectedly low: %f", near)
	}
}
