package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/jobsift/internal/blocking"
	"horse.fit/jobsift/internal/canonical"
	"horse.fit/jobsift/internal/clustergraph"
	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/fingerprint"
	"horse.fit/jobsift/internal/match"
	"horse.fit/jobsift/internal/scoring"
)

type fixture struct {
	coord  *Coordinator
	engine *clustergraph.Engine
}

func newFixture() *fixture {
	scorer := scoring.NewScorer(
		config.JobWeights{Title: 0.30, Organization: 0.25, Location: 0.15, Description: 0.20, Temporal: 0.10},
		config.OrgWeights{Name: 0.40, Location: 0.20, Industry: 0.15, Website: 0.15, Contact: 0.10},
	)
	pipeline := match.NewPipeline(scorer, match.Options{
		Thresholds:             scoring.Thresholds{Near: 0.85, FuzzyAccept: 0.75, Possible: 0.60},
		RepostingWindow:        30 * 24 * time.Hour,
		LargeEmployerThreshold: 500,
	}, zerolog.Nop())
	engine := clustergraph.NewEngine(false)
	coord := NewCoordinator(
		fingerprint.NewGenerator(fingerprint.DefaultShingleSize, 64),
		blocking.NewIndex(30),
		pipeline,
		engine,
		canonical.NewSelector([]string{"company-site", "professional-network", "aggregator"}),
		zerolog.Nop(),
	)
	return &fixture{coord: coord, engine: engine}
}

func job(id int64, title, org, city, province, description string, postedAt time.Time, quality int) *entity.Record {
	return &entity.Record{
		ID:           id,
		Kind:         entity.KindJob,
		Source:       "aggregator",
		Title:        title,
		OrgName:      org,
		City:         city,
		Province:     province,
		Description:  description,
		PostedAt:     postedAt,
		QualityScore: quality,
	}
}

var testBase = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

const (
	descOur = "Build and operate distributed payment systems in Go with Postgres and Kafka for our platform team."
	descThe = "Build and operate distributed payment systems in Go with Postgres and Kafka for the platform team."
)

// chainFixture processes three jobs wired 1 -(fuzzy)- 2 -(exact)- 3.
func chainFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture()
	ctx := context.Background()

	records := []*entity.Record{
		job(1, "Senior Developer", "Google", "Cape Town", "Western Cape", descOur, testBase, 50),
		job(2, "Snr Developer", "Google (Pty) Ltd", "Cape Town", "Western Cape", descThe, testBase.Add(48*time.Hour), 50),
		job(3, "Snr Developer", "Google", "Cape Town", "Western Cape", descThe, testBase.Add(24*time.Hour), 80),
	}
	for _, rec := range records {
		if _, err := f.coord.Process(ctx, rec); err != nil {
			t.Fatalf("Process(%d): %v", rec.ID, err)
		}
	}
	return f
}

func TestProcess_SingletonFirstRecord(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec := job(1, "Senior Developer", "Google", "Cape Town", "Western Cape", descOur, testBase, 50)

	assignment, err := f.coord.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if assignment.ClusterID != 1 || !assignment.IsCanonical {
		t.Fatalf("assignment = %+v, want canonical singleton cluster 1", assignment)
	}
	if assignment.Confidence != 1 {
		t.Fatalf("singleton confidence = %v, want 1", assignment.Confidence)
	}
	if len(assignment.Edges) != 0 {
		t.Fatalf("first record produced edges: %+v", assignment.Edges)
	}
}

func TestProcess_BuildsChainCluster(t *testing.T) {
	t.Parallel()

	f := chainFixture(t)

	for id := int64(1); id <= 3; id++ {
		assignment, err := f.coord.ClusterAssignment(id)
		if err != nil {
			t.Fatalf("ClusterAssignment(%d): %v", id, err)
		}
		if assignment.ClusterID != 1 {
			t.Fatalf("record %d in cluster %d, want 1", id, assignment.ClusterID)
		}
	}

	// Record 3 has the best quality score, so it is the canonical member.
	assignment, err := f.coord.ClusterAssignment(3)
	if err != nil {
		t.Fatalf("ClusterAssignment(3): %v", err)
	}
	if !assignment.IsCanonical || assignment.CanonicalID != 3 {
		t.Fatalf("assignment = %+v, want record 3 canonical", assignment)
	}

	members, err := f.coord.ClusterMembers(1)
	if err != nil {
		t.Fatalf("ClusterMembers: %v", err)
	}
	if len(members) != 3 || members[0].ID != 3 {
		t.Fatalf("members = %+v, want canonical record 3 first of three", members)
	}
}

func TestProcess_ReprocessingIsIdempotent(t *testing.T) {
	t.Parallel()

	f := chainFixture(t)
	before, err := f.coord.ClusterAssignment(3)
	if err != nil {
		t.Fatalf("ClusterAssignment: %v", err)
	}

	rerun := job(3, "Snr Developer", "Google", "Cape Town", "Western Cape", descThe, testBase.Add(24*time.Hour), 80)
	after, err := f.coord.Process(context.Background(), rerun)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}

	if after.ClusterID != before.ClusterID || after.CanonicalID != before.CanonicalID {
		t.Fatalf("reprocessing moved the record: before %+v after %+v", before, after)
	}
	if after.Confidence != before.Confidence {
		t.Fatalf("reprocessing changed confidence from %v to %v", before.Confidence, after.Confidence)
	}
	if got := f.engine.Edges(3); len(got) != 1 {
		t.Fatalf("reprocessing duplicated edges: %+v", got)
	}
}

func TestProcess_ReprocessingReplacesAttributes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	first := job(1, "Senior Developer", "Google", "Cape Town", "Western Cape", "", testBase, 50)
	second := job(2, "Senior Developer", "Google", "Cape Town", "Western Cape", "", testBase, 50)
	for _, rec := range []*entity.Record{first, second} {
		if _, err := f.coord.Process(ctx, rec); err != nil {
			t.Fatalf("Process(%d): %v", rec.ID, err)
		}
	}

	moved := job(2, "Data Engineer", "Takealot", "Durban", "KwaZulu-Natal", "", testBase, 50)
	assignment, err := f.coord.Process(ctx, moved)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if len(assignment.Edges) != 0 {
		t.Fatalf("renamed record still matched: %+v", assignment.Edges)
	}

	stored, err := f.coord.Record(2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if stored.Title != "Data Engineer" || stored.City != "Durban" {
		t.Fatalf("attributes not replaced wholesale: %+v", stored)
	}

	// Earlier accepted edges are retracted through invalidation, not by
	// reprocessing, so the record keeps its cluster until then.
	if assignment.ClusterID != 1 {
		t.Fatalf("record 2 in cluster %d, want 1 until the stale edge is invalidated", assignment.ClusterID)
	}
}

func TestInvalidateEdge_SplitsAndReassignsCanonicals(t *testing.T) {
	t.Parallel()

	f := chainFixture(t)

	assignments, err := f.coord.InvalidateEdge(1, 2)
	if err != nil {
		t.Fatalf("InvalidateEdge: %v", err)
	}
	if len(assignments) != 3 {
		t.Fatalf("expected assignments for all 3 affected records, got %+v", assignments)
	}

	want := map[int64]int64{1: 1, 2: 2, 3: 2}
	for _, assignment := range assignments {
		if assignment.ClusterID != want[assignment.RecordID] {
			t.Fatalf("record %d in cluster %d, want %d",
				assignment.RecordID, assignment.ClusterID, want[assignment.RecordID])
		}
	}

	// The surviving pair keeps record 3 canonical; record 1 is its own.
	after, err := f.coord.ClusterAssignment(2)
	if err != nil {
		t.Fatalf("ClusterAssignment(2): %v", err)
	}
	if after.CanonicalID != 3 {
		t.Fatalf("canonical of cluster 2 = %d, want 3", after.CanonicalID)
	}

	if _, err := f.coord.InvalidateEdge(1, 2); !errors.Is(err, clustergraph.ErrEdgeNotFound) {
		t.Fatalf("repeated invalidation = %v, want ErrEdgeNotFound", err)
	}
}

func TestProcess_PossibleBandQueuedWithoutMerge(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	anchor := job(1, "Senior Developer", "Google", "Cape Town", "Western Cape", "", testBase, 50)
	if _, err := f.coord.Process(ctx, anchor); err != nil {
		t.Fatalf("Process(1): %v", err)
	}

	maybe := job(2, "Senior Developer", "Google", "Stellenbosch", "Western Cape", "", testBase.Add(24*time.Hour), 50)
	assignment, err := f.coord.Process(ctx, maybe)
	if err != nil {
		t.Fatalf("Process(2): %v", err)
	}

	if len(assignment.Possibles) != 1 {
		t.Fatalf("expected one review-band pair, got %+v", assignment.Possibles)
	}
	if assignment.ClusterID != 2 {
		t.Fatalf("possible pair must not merge; record 2 in cluster %d", assignment.ClusterID)
	}
}

func TestProcess_RejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	f := newFixture()
	bad := job(1, "", "Google", "Cape Town", "Western Cape", "", testBase, 50)

	_, err := f.coord.Process(context.Background(), bad)
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != "validate" {
		t.Fatalf("error = %v, want validate StageError", err)
	}
}

func TestClusters_Listing(t *testing.T) {
	t.Parallel()

	f := chainFixture(t)
	summaries, err := f.coord.Clusters()
	if err != nil {
		t.Fatalf("Clusters: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one cluster, got %+v", summaries)
	}
	s := summaries[0]
	if s.ClusterID != 1 || s.Size != 3 || s.CanonicalID != 3 || s.Kind != entity.KindJob {
		t.Fatalf("summary = %+v, want cluster 1 size 3 canonical 3", s)
	}
}
