// Package ingest owns the durable side of resolution: it accepts record
// submissions, drains the pending queue through the in-memory resolver, and
// writes every decision back to Postgres in the same transaction that
// claimed the record.
package ingest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/jobsift/internal/db"
	"horse.fit/jobsift/internal/dedup"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/globaltime"
	"horse.fit/jobsift/internal/langdetect"
	"horse.fit/jobsift/internal/match"
	recordschema "horse.fit/jobsift/schema"
)

const maxErrorLength = 4000

type Service struct {
	pool   *db.Pool
	coord  *dedup.Coordinator
	logger zerolog.Logger
}

func NewService(pool *db.Pool, coord *dedup.Coordinator, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		coord:  coord,
		logger: logger,
	}
}

// SubmitRecord validates a raw submission payload and queues it for
// resolution. Resubmitting the same (source, source_item_id, kind) refreshes
// the stored attributes and re-queues the record.
func (s *Service) SubmitRecord(ctx context.Context, payload json.RawMessage) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("ingest service is not initialized")
	}

	record, err := recordschema.ValidateRecordPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("validate submission: %w", err)
	}

	params := submissionParams(record)
	if params.Language == nil && record.Description != nil {
		if code := langdetect.DetectISO6391(*record.Description); code != "" {
			params.Language = &code
		}
	}

	recordID, err := s.pool.SubmitRecord(ctx, params)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Int64("record_id", recordID).
		Str("source", params.Source).
		Str("kind", params.Kind).
		Msg("record submitted")
	return recordID, nil
}

// ProcessPending drains up to limit pending records. Each record is claimed
// with FOR UPDATE SKIP LOCKED and fully persisted before the next claim, so
// a crash mid-batch loses at most the record being worked on, which stays
// pending for the next run.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	processed := 0
	for processed < limit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		done, err := s.processNext(ctx)
		if err != nil {
			return processed, err
		}
		if done {
			break
		}
		processed++
	}
	return processed, nil
}

// processNext claims one pending record. Returns done=true when the queue is
// empty.
func (s *Service) processNext(ctx context.Context) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	claimed, err := db.ClaimPendingRecord(ctx, tx)
	if err != nil {
		if db.IsNoRows(err) {
			return true, nil
		}
		return false, fmt.Errorf("claim pending record: %w", err)
	}

	rec := toEntity(claimed)
	assignment, processErr := s.coord.Process(ctx, rec)
	if processErr != nil {
		if ctx.Err() != nil {
			return false, processErr
		}
		msg := strings.TrimSpace(processErr.Error())
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
		if err := db.MarkRecordFailed(ctx, tx, rec.ID, msg); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("commit failed record: %w", err)
		}
		s.logger.Warn().
			Int64("record_id", rec.ID).
			Str("error", msg).
			Msg("record failed resolution")
		return false, nil
	}

	if err := s.persistAssignment(ctx, tx, rec, assignment); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit resolved record: %w", err)
	}

	s.logger.Info().
		Int64("record_id", rec.ID).
		Int64("cluster_id", assignment.ClusterID).
		Int("edges", len(assignment.Edges)).
		Int("possibles", len(assignment.Possibles)).
		Msg("record resolved")
	return false, nil
}

func (s *Service) persistAssignment(ctx context.Context, tx db.Tx, rec *entity.Record, assignment dedup.Assignment) error {
	fp, err := s.coord.Fingerprint(rec.ID)
	if err != nil {
		return err
	}

	err = db.MarkRecordResolved(ctx, tx, rec.ID, assignment.ClusterID, assignment.IsCanonical,
		fp.ExactHash, encodeSketch(fp.Sketch))
	if err != nil {
		return err
	}

	for _, edge := range assignment.Edges {
		if err := db.UpsertEdge(ctx, tx, edge.A, edge.B, string(edge.Type), edge.Score); err != nil {
			return err
		}
	}
	for _, possible := range assignment.Possibles {
		if err := db.EnqueueReviewItem(ctx, tx, possible.A, possible.B, possible.Score); err != nil {
			return err
		}
	}

	if err := s.persistCluster(ctx, tx, assignment.ClusterID); err != nil {
		return err
	}

	if err := db.InsertResolutionEvent(ctx, tx, rec.ID, assignment.ClusterID,
		decisionFor(assignment), len(assignment.Edges), len(assignment.Possibles),
		assignment.Warnings, assignment.Confidence); err != nil {
		return err
	}
	return nil
}

// persistCluster rewrites the cluster row and every member's placement, and
// removes rows of clusters absorbed by a merge. Absorbed cluster ids are
// always member ids other than the surviving lowest one.
func (s *Service) persistCluster(ctx context.Context, tx db.Tx, clusterID int64) error {
	members, err := s.coord.ClusterMembers(clusterID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("cluster %d has no members", clusterID)
	}

	canonicalID := members[0].ID
	confidence := 1.0
	if a, err := s.coord.ClusterAssignment(canonicalID); err == nil {
		confidence = a.Confidence
	}

	err = db.UpsertCluster(ctx, tx, clusterID, string(members[0].Kind), canonicalID, len(members), confidence)
	if err != nil {
		return err
	}

	for _, member := range members {
		if err := db.UpdateRecordPlacement(ctx, tx, member.ID, clusterID, member.ID == canonicalID); err != nil {
			return err
		}
		if member.ID != clusterID {
			if err := db.DeleteCluster(ctx, tx, member.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// InvalidateEdge retracts an accepted edge, splits the cluster as needed and
// persists the new placements atomically.
func (s *Service) InvalidateEdge(ctx context.Context, recordA, recordB int64) ([]dedup.Assignment, error) {
	assignments, err := s.coord.InvalidateEdge(recordA, recordB)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := db.InvalidateEdgeRow(ctx, tx, recordA, recordB); err != nil && !db.IsNoRows(err) {
		return nil, err
	}

	seen := make(map[int64]struct{})
	for _, assignment := range assignments {
		if _, ok := seen[assignment.ClusterID]; ok {
			continue
		}
		seen[assignment.ClusterID] = struct{}{}
		if err := s.persistCluster(ctx, tx, assignment.ClusterID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit invalidation: %w", err)
	}

	s.logger.Info().
		Int64("record_a", recordA).
		Int64("record_b", recordB).
		Int("affected", len(assignments)).
		Msg("edge invalidated")
	return assignments, nil
}

// PromoteReviewItem accepts a parked possible pair as a fuzzy edge and
// merges the clusters; DiscardReviewItem drops it. Both close the item.
func (s *Service) PromoteReviewItem(ctx context.Context, reviewItemID int64, resolvedBy string) error {
	item, err := s.pool.GetReviewItem(ctx, reviewItemID)
	if err != nil {
		return fmt.Errorf("load review item %d: %w", reviewItemID, err)
	}

	edge, err := promotionEdge(item)
	if err != nil {
		return err
	}
	if err := s.coord.ApplyStoredEdge(edge); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := db.ResolveReviewItem(ctx, tx, reviewItemID, "promoted", "merged as fuzzy edge", resolvedBy); err != nil {
		return err
	}
	if err := db.UpsertEdge(ctx, tx, edge.A, edge.B, string(edge.Type), edge.Score); err != nil {
		return err
	}

	assignment, err := s.coord.ClusterAssignment(edge.A)
	if err != nil {
		return err
	}
	if err := s.persistCluster(ctx, tx, assignment.ClusterID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit promotion: %w", err)
	}
	return nil
}

// promotionEdge builds the merge edge for a pending review item. Promoted and
// discarded items are final: applying one to the in-memory graph would merge
// clusters the database transaction then refuses, leaving the two diverged.
func promotionEdge(item *db.ReviewItemRow) (match.Edge, error) {
	if item == nil {
		return match.Edge{}, fmt.Errorf("review item is nil")
	}
	if item.Status != "pending" {
		return match.Edge{}, fmt.Errorf("review item %d is %s, not pending", item.ReviewItemID, item.Status)
	}
	return match.NewEdge(item.RecordAID, item.RecordBID, match.TypeFuzzy, item.Score), nil
}

func (s *Service) DiscardReviewItem(ctx context.Context, reviewItemID int64, resolvedBy string) error {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := db.ResolveReviewItem(ctx, tx, reviewItemID, "discarded", "not a duplicate", resolvedBy); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit discard: %w", err)
	}
	return nil
}

// Rehydrate rebuilds the in-memory resolver state from the persisted records
// and active edges. Run once at startup before serving or processing.
func (s *Service) Rehydrate(ctx context.Context) error {
	start := globaltime.UTC()

	records := 0
	err := s.pool.ListResolvedRecords(ctx, func(row *db.Record) error {
		if err := s.coord.Seed(toEntity(row)); err != nil {
			return fmt.Errorf("seed record %d: %w", row.RecordID, err)
		}
		records++
		return nil
	})
	if err != nil {
		return err
	}

	edges := 0
	err = s.pool.ListActiveEdges(ctx, func(row db.EdgeRow) error {
		edge := match.NewEdge(row.RecordAID, row.RecordBID, match.Type(row.EdgeType), row.Score)
		if err := s.coord.ApplyStoredEdge(edge); err != nil {
			return fmt.Errorf("replay edge %d-%d: %w", row.RecordAID, row.RecordBID, err)
		}
		edges++
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("records", records).
		Int("edges", edges).
		Dur("took", time.Since(start)).
		Msg("resolver state rehydrated")
	return nil
}

func submissionParams(record *recordschema.RecordPayload) db.SubmitRecordParams {
	postedAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(record.PostedAt))

	params := db.SubmitRecordParams{
		Kind:         record.Kind,
		Source:       strings.TrimSpace(record.Source),
		SourceItemID: strings.TrimSpace(record.SourceItemID),
		SourceURL:    record.SourceURL,
		Title:        record.Title,
		OrgName:      strings.TrimSpace(record.OrgName),
		OrgID:        record.OrgID,
		City:         record.City,
		Province:     record.Province,
		Description:  record.Description,
		Industry:     record.Industry,
		Website:      record.Website,
		ContactEmail: record.ContactEmail,
		ContactPhone: record.ContactPhone,
		Language:     record.Language,
		PostedAt:     postedAt,
	}
	if record.EmployeeCount != nil {
		params.EmployeeCount = *record.EmployeeCount
	}
	if record.QualityScore != nil {
		params.QualityScore = *record.QualityScore
	}
	return params
}

func toEntity(row *db.Record) *entity.Record {
	rec := &entity.Record{
		ID:            row.RecordID,
		RecordUUID:    row.RecordUUID,
		Kind:          entity.Kind(row.Kind),
		Source:        row.Source,
		SourceItemID:  row.SourceItemID,
		OrgName:       row.OrgName,
		OrgID:         row.OrgID,
		EmployeeCount: row.EmployeeCount,
		PostedAt:      row.PostedAt,
		QualityScore:  row.QualityScore,
	}
	rec.SourceURL = deref(row.SourceURL)
	rec.Title = deref(row.Title)
	rec.City = deref(row.City)
	rec.Province = deref(row.Province)
	rec.Description = deref(row.Description)
	rec.Industry = deref(row.Industry)
	rec.Website = deref(row.Website)
	rec.ContactEmail = deref(row.ContactEmail)
	rec.ContactPhone = deref(row.ContactPhone)
	rec.Language = deref(row.Language)
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func encodeSketch(sketch []uint64) []byte {
	if len(sketch) == 0 {
		return nil
	}
	out := make([]byte, 8*len(sketch))
	for i, slot := range sketch {
		binary.BigEndian.PutUint64(out[i*8:], slot)
	}
	return out
}

func decisionFor(assignment dedup.Assignment) string {
	if len(assignment.Edges) == 0 {
		if len(assignment.Possibles) > 0 {
			return "possible"
		}
		return "singleton"
	}
	best := assignment.Edges[0]
	for _, edge := range assignment.Edges[1:] {
		if edge.Score > best.Score {
			best = edge
		}
	}
	return string(best.Type)
}
