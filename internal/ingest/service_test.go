package ingest

import (
	"testing"
	"time"

	"horse.fit/jobsift/internal/db"
	"horse.fit/jobsift/internal/dedup"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/match"
)

func strPtr(s string) *string { return &s }

func TestToEntity(t *testing.T) {
	t.Parallel()

	postedAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	row := &db.Record{
		RecordID:     42,
		RecordUUID:   "2f3c9a1e-0000-0000-0000-000000000042",
		Kind:         "job",
		Source:       "aggregator",
		SourceItemID: "agg-42",
		Title:        strPtr("Senior Developer"),
		OrgName:      "Acme",
		City:         strPtr("Cape Town"),
		Province:     nil,
		PostedAt:     postedAt,
		QualityScore: 61,
	}

	rec := toEntity(row)
	if rec.ID != 42 || rec.Kind != entity.KindJob {
		t.Fatalf("identity fields wrong: %+v", rec)
	}
	if rec.Title != "Senior Developer" || rec.City != "Cape Town" {
		t.Fatalf("pointer fields not dereferenced: %+v", rec)
	}
	if rec.Province != "" {
		t.Fatalf("nil pointer must map to empty string, got %q", rec.Province)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("converted record must validate: %v", err)
	}
}

func TestEncodeSketch(t *testing.T) {
	t.Parallel()

	if got := encodeSketch(nil); got != nil {
		t.Fatalf("empty sketch must encode to nil, got %v", got)
	}

	encoded := encodeSketch([]uint64{1, 0x0102030405060708})
	if len(encoded) != 16 {
		t.Fatalf("encoded length = %d, want 16", len(encoded))
	}
	if encoded[7] != 1 || encoded[8] != 0x01 || encoded[15] != 0x08 {
		t.Fatalf("big-endian layout wrong: %v", encoded)
	}
}

func TestPromotionEdge(t *testing.T) {
	t.Parallel()

	item := &db.ReviewItemRow{
		ReviewItemID: 7,
		RecordAID:    3,
		RecordBID:    9,
		Score:        0.68,
		Status:       "pending",
	}

	edge, err := promotionEdge(item)
	if err != nil {
		t.Fatalf("promotionEdge: %v", err)
	}
	if edge.A != 3 || edge.B != 9 || edge.Type != match.TypeFuzzy || edge.Score != 0.68 {
		t.Fatalf("unexpected edge %+v", edge)
	}

	// A finalized item must be rejected before any cluster state changes;
	// otherwise the in-memory merge survives the database rollback.
	for _, status := range []string{"promoted", "discarded"} {
		item.Status = status
		if _, err := promotionEdge(item); err == nil {
			t.Fatalf("promotionEdge accepted %s item", status)
		}
	}

	if _, err := promotionEdge(nil); err == nil {
		t.Fatal("promotionEdge accepted nil item")
	}
}

func TestDecisionFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		assignment dedup.Assignment
		want       string
	}{
		{name: "singleton", assignment: dedup.Assignment{}, want: "singleton"},
		{
			name:       "possible only",
			assignment: dedup.Assignment{Possibles: []match.Possible{{A: 1, B: 2, Score: 0.7}}},
			want:       "possible",
		},
		{
			name: "best edge wins",
			assignment: dedup.Assignment{Edges: []match.Edge{
				{A: 1, B: 2, Type: match.TypeFuzzy, Score: 0.8},
				{A: 1, B: 3, Type: match.TypeExact, Score: 1.0},
			}},
			want: "exact",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := decisionFor(tc.assignment); got != tc.want {
				t.Fatalf("decisionFor = %q, want %q", got, tc.want)
			}
		})
	}
}
