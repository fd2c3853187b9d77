package blocking

import (
	"testing"
	"time"

	"horse.fit/jobsift/internal/entity"
)

func jobAt(id int64, org, province string, postedAt time.Time) *entity.Record {
	return &entity.Record{
		ID:       id,
		Kind:     entity.KindJob,
		Source:   "aggregator",
		Title:    "Senior Developer",
		OrgName:  org,
		Province: province,
		PostedAt: postedAt,
	}
}

func TestCandidates_SharedOrgWithinWindow(t *testing.T) {
	t.Parallel()

	idx := NewIndex(minWindowDays)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := jobAt(1, "Google", "Western Cape", base)
	b := jobAt(2, "Google (Pty) Ltd", "Western Cape", base.Add(48*time.Hour))
	if err := idx.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := idx.Insert(b); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	got := idx.Candidates(a)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected candidate [2], got %v", got)
	}

	// Blocking recall must be symmetric.
	got = idx.Candidates(b)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected candidate [1], got %v", got)
	}
}

func TestCandidates_WindowBucketsOverlap(t *testing.T) {
	t.Parallel()

	idx := NewIndex(minWindowDays)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a := jobAt(1, "Acme", "", base)
	b := jobAt(2, "Acme", "", base.Add(29*24*time.Hour))
	if err := idx.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := idx.Insert(b); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	if got := idx.Candidates(a); len(got) != 1 {
		t.Fatalf("records 29 days apart must share a window bucket, got %v", got)
	}
}

func TestCandidates_WideRepostingWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobAt(1, "Acme", "Gauteng", base)
	repost := jobAt(2, "Acme", "Gauteng", base.Add(45*24*time.Hour))

	// At the minimum width the pair straddles two bucket boundaries and
	// never shares a key.
	narrow := NewIndex(minWindowDays)
	if err := narrow.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := narrow.Insert(repost); err != nil {
		t.Fatalf("insert repost: %v", err)
	}
	if got := narrow.Candidates(repost); len(got) != 0 {
		t.Fatalf("45-day gap visible at minimum window, got %v", got)
	}

	// A 60-day reposting window must widen blocking so the repost reaches
	// the pipeline at all.
	wide := NewIndex(60)
	if err := wide.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := wide.Insert(repost); err != nil {
		t.Fatalf("insert repost: %v", err)
	}
	if got := wide.Candidates(repost); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected candidate [1] at 60-day window, got %v", got)
	}

	// Sub-minimum widths are raised, never narrowed.
	clamped := NewIndex(7)
	if err := clamped.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	near := jobAt(3, "Acme", "Gauteng", base.Add(29*24*time.Hour))
	if err := clamped.Insert(near); err != nil {
		t.Fatalf("insert near: %v", err)
	}
	if got := clamped.Candidates(near); len(got) != 1 {
		t.Fatalf("29-day gap must stay visible with a clamped window, got %v", got)
	}
}

func TestCandidates_ExcludesSelfAndOtherKinds(t *testing.T) {
	t.Parallel()

	idx := NewIndex(minWindowDays)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job := jobAt(1, "Acme", "Gauteng", base)
	org := &entity.Record{
		ID:       2,
		Kind:     entity.KindOrganization,
		Source:   "cipc",
		OrgName:  "Acme",
		Province: "Gauteng",
		PostedAt: base,
	}
	if err := idx.Insert(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := idx.Insert(org); err != nil {
		t.Fatalf("insert org: %v", err)
	}

	if got := idx.Candidates(job); len(got) != 0 {
		t.Fatalf("job must not see organization candidates, got %v", got)
	}
}

func TestInsert_ReplacesKeysOnReinsert(t *testing.T) {
	t.Parallel()

	idx := NewIndex(minWindowDays)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobAt(1, "Acme", "Gauteng", base)
	peer := jobAt(2, "Acme", "Gauteng", base)
	if err := idx.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := idx.Insert(peer); err != nil {
		t.Fatalf("insert peer: %v", err)
	}

	// Re-normalization moved the record to another employer; the old keys
	// must not keep matching.
	moved := jobAt(1, "Initech", "Gauteng", base)
	if err := idx.Insert(moved); err != nil {
		t.Fatalf("reinsert moved: %v", err)
	}

	got := idx.Candidates(peer)
	if len(got) != 1 || got[0] != 1 {
		// Province key still shared; employer key must be gone.
		t.Fatalf("expected province-only candidate [1], got %v", got)
	}

	orgOnly := jobAt(3, "Acme", "", base)
	if got := idx.Candidates(orgOnly); len(got) != 0 {
		t.Fatalf("stale employer bucket still matched: %v", got)
	}
}

func TestOrgKeys_InitialAndProvince(t *testing.T) {
	t.Parallel()

	rec := &entity.Record{
		ID:       1,
		Kind:     entity.KindOrganization,
		OrgName:  "Takealot (Pty) Ltd",
		Province: "Western Cape",
		Industry: "Retail",
		PostedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	keys := NewIndex(minWindowDays).KeysFor(rec)
	if len(keys) != 2 {
		t.Fatalf("expected 2 org keys, got %v", keys)
	}
	for _, key := range keys {
		if key[:14] != "org|initial|t|" {
			t.Fatalf("unexpected org key %q", key)
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	idx := NewIndex(minWindowDays)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobAt(1, "Acme", "Gauteng", base)
	b := jobAt(2, "Acme", "Gauteng", base)
	if err := idx.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := idx.Insert(b); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	idx.Remove(2)
	if got := idx.Candidates(a); len(got) != 0 {
		t.Fatalf("removed record still a candidate: %v", got)
	}
}
