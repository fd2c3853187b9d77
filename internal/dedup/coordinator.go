// Package dedup ties the resolution stages together: fingerprinting, blocking,
// staged matching, cluster graph maintenance, and canonical selection. The
// coordinator owns the in-memory record arena and is the only component that
// touches more than one stage.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/jobsift/internal/blocking"
	"horse.fit/jobsift/internal/canonical"
	"horse.fit/jobsift/internal/clustergraph"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/fingerprint"
	"horse.fit/jobsift/internal/match"
)

// StageError tags a failure with the resolution stage it came from, so the
// caller can tell a bad record apart from an engine fault.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dedup %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Assignment is the result of resolving one record: where it landed and the
// evidence that put it there.
type Assignment struct {
	RecordID    int64
	ClusterID   int64
	IsCanonical bool
	CanonicalID int64
	Confidence  float64
	Edges       []match.Edge
	Possibles   []match.Possible
	Warnings    []string
}

// Coordinator resolves records one at a time. Process calls are serialized;
// reads (ClusterAssignment, ClusterMembers) only take the coordinator lock
// long enough to copy.
type Coordinator struct {
	mu sync.Mutex

	generator *fingerprint.Generator
	index     *blocking.Index
	pipeline  *match.Pipeline
	engine    *clustergraph.Engine
	selector  *canonical.Selector
	logger    zerolog.Logger

	records      map[int64]*entity.Record
	fingerprints map[int64]fingerprint.Fingerprint
}

func NewCoordinator(
	generator *fingerprint.Generator,
	index *blocking.Index,
	pipeline *match.Pipeline,
	engine *clustergraph.Engine,
	selector *canonical.Selector,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		generator:    generator,
		index:        index,
		pipeline:     pipeline,
		engine:       engine,
		selector:     selector,
		logger:       logger,
		records:      make(map[int64]*entity.Record),
		fingerprints: make(map[int64]fingerprint.Fingerprint),
	}
}

// Process resolves one record end to end. Reprocessing a known id replaces
// its attributes wholesale, refreshes its fingerprint and blocking keys, and
// never records a duplicate edge.
func (c *Coordinator) Process(ctx context.Context, rec *entity.Record) (Assignment, error) {
	if err := rec.Validate(); err != nil {
		return Assignment{}, stageErr("validate", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fp := c.generator.Fingerprint(rec)

	// Gather candidates before the record is inserted, so it never matches
	// itself through the index.
	candidateIDs := c.index.Candidates(rec)
	candidates := make([]match.Candidate, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		other, ok := c.records[id]
		if !ok {
			return Assignment{}, stageErr("blocking", fmt.Errorf("index returned unknown record %d", id))
		}
		clusterID, _ := c.engine.ClusterOf(id)
		candidates = append(candidates, match.Candidate{
			Record:      other,
			Fingerprint: c.fingerprints[id],
			ClusterID:   clusterID,
		})
	}

	outcome, err := c.pipeline.Run(ctx, rec, fp, candidates)
	if err != nil {
		return Assignment{}, stageErr("match", err)
	}

	stored := *rec
	c.records[rec.ID] = &stored
	c.fingerprints[rec.ID] = fp
	if err := c.index.Insert(&stored); err != nil {
		return Assignment{}, stageErr("blocking", err)
	}
	if err := c.engine.Track(rec.ID, rec.Kind); err != nil {
		return Assignment{}, stageErr("cluster", err)
	}
	if err := c.engine.ApplyEdges(outcome.Edges); err != nil {
		return Assignment{}, stageErr("cluster", err)
	}

	assignment, err := c.assignmentLocked(rec.ID)
	if err != nil {
		return Assignment{}, err
	}
	assignment.Edges = outcome.Edges
	assignment.Possibles = outcome.Possibles
	assignment.Warnings = outcome.Warnings

	c.logger.Debug().
		Int64("record_id", rec.ID).
		Int64("cluster_id", assignment.ClusterID).
		Int("edges", len(outcome.Edges)).
		Int("possibles", len(outcome.Possibles)).
		Msg("record resolved")
	return assignment, nil
}

// Seed loads an already resolved record into the arena, blocking index and
// cluster graph without matching it. Used to rebuild state at startup;
// stored edges are replayed separately through ApplyStoredEdge.
func (c *Coordinator) Seed(rec *entity.Record) error {
	if err := rec.Validate(); err != nil {
		return stageErr("validate", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *rec
	c.records[rec.ID] = &stored
	c.fingerprints[rec.ID] = c.generator.Fingerprint(rec)
	if err := c.index.Insert(&stored); err != nil {
		return stageErr("blocking", err)
	}
	if err := c.engine.Track(rec.ID, rec.Kind); err != nil {
		return stageErr("cluster", err)
	}
	return nil
}

// ApplyStoredEdge replays one persisted edge into the cluster graph.
func (c *Coordinator) ApplyStoredEdge(edge match.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.engine.ApplyEdges([]match.Edge{edge}); err != nil {
		return stageErr("cluster", err)
	}
	return nil
}

// Fingerprint returns the cached fingerprint of a known record.
func (c *Coordinator) Fingerprint(recordID int64) (fingerprint.Fingerprint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp, ok := c.fingerprints[recordID]
	if !ok {
		return fingerprint.Fingerprint{}, stageErr("lookup", fmt.Errorf("unknown record %d", recordID))
	}
	return fp, nil
}

// ClusterAssignment reports the current placement of a known record.
func (c *Coordinator) ClusterAssignment(recordID int64) (Assignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignmentLocked(recordID)
}

func (c *Coordinator) assignmentLocked(recordID int64) (Assignment, error) {
	if _, ok := c.records[recordID]; !ok {
		return Assignment{}, stageErr("lookup", fmt.Errorf("unknown record %d", recordID))
	}
	clusterID, ok := c.engine.ClusterOf(recordID)
	if !ok {
		return Assignment{}, stageErr("cluster", fmt.Errorf("record %d is tracked nowhere", recordID))
	}

	members, err := c.memberRecordsLocked(clusterID)
	if err != nil {
		return Assignment{}, err
	}
	canon, err := c.selector.Select(members)
	if err != nil {
		return Assignment{}, stageErr("canonical", err)
	}
	confidence, err := c.engine.Confidence(clusterID)
	if err != nil {
		return Assignment{}, stageErr("cluster", err)
	}

	return Assignment{
		RecordID:    recordID,
		ClusterID:   clusterID,
		IsCanonical: canon.ID == recordID,
		CanonicalID: canon.ID,
		Confidence:  confidence,
	}, nil
}

// ClusterMembers returns copies of the cluster's records, canonical first.
func (c *Coordinator) ClusterMembers(clusterID int64) ([]entity.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	members, err := c.memberRecordsLocked(clusterID)
	if err != nil {
		return nil, err
	}
	ranked := c.selector.Rank(members)
	out := make([]entity.Record, 0, len(ranked))
	for _, m := range ranked {
		out = append(out, *m)
	}
	return out, nil
}

// Clusters lists every cluster with its canonical record id.
func (c *Coordinator) Clusters() ([]ClusterSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := c.engine.Snapshot()
	out := make([]ClusterSummary, 0, len(infos))
	for _, info := range infos {
		members, err := c.memberRecordsLocked(info.ID)
		if err != nil {
			return nil, err
		}
		canon, err := c.selector.Select(members)
		if err != nil {
			return nil, stageErr("canonical", err)
		}
		out = append(out, ClusterSummary{
			ClusterID:   info.ID,
			Kind:        info.Kind,
			Size:        len(info.Members),
			CanonicalID: canon.ID,
			Confidence:  info.Confidence,
		})
	}
	return out, nil
}

// ClusterSummary is the listing row for one cluster.
type ClusterSummary struct {
	ClusterID   int64
	Kind        entity.Kind
	Size        int
	CanonicalID int64
	Confidence  float64
}

// InvalidateEdge retracts an accepted edge and returns the fresh assignment
// of every record whose cluster changed shape, sorted by record id.
func (c *Coordinator) InvalidateEdge(a, b int64) ([]Assignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	moved, err := c.engine.InvalidateEdge(a, b)
	if err != nil {
		return nil, stageErr("cluster", err)
	}

	ids := make([]int64, 0, len(moved))
	for id := range moved {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Assignment, 0, len(ids))
	for _, id := range ids {
		assignment, err := c.assignmentLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment)
	}
	return out, nil
}

// Record returns a copy of the stored record.
func (c *Coordinator) Record(recordID int64) (entity.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[recordID]
	if !ok {
		return entity.Record{}, stageErr("lookup", fmt.Errorf("unknown record %d", recordID))
	}
	return *rec, nil
}

func (c *Coordinator) memberRecordsLocked(clusterID int64) ([]*entity.Record, error) {
	ids, err := c.engine.Members(clusterID)
	if err != nil {
		return nil, stageErr("cluster", err)
	}
	members := make([]*entity.Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.records[id]
		if !ok {
			return nil, stageErr("cluster", fmt.Errorf("cluster %d references unknown record %d", clusterID, id))
		}
		members = append(members, rec)
	}
	return members, nil
}
