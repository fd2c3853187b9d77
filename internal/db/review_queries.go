package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ReviewItemRow is the read model for the review queue.
type ReviewItemRow struct {
	ReviewItemID   int64      `json:"review_item_id"`
	ReviewItemUUID string     `json:"review_item_uuid"`
	RecordAID      int64      `json:"record_a_id"`
	RecordBID      int64      `json:"record_b_id"`
	Score          float64    `json:"score"`
	Status         string     `json:"status"`
	Resolution     *string    `json:"resolution,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EnqueueReviewItem parks a possible-band pair for review. An already pending
// pair keeps its original score and age.
func EnqueueReviewItem(ctx context.Context, tx Tx, recordA, recordB int64, score float64) error {
	if recordB < recordA {
		recordA, recordB = recordB, recordA
	}

	const q = `
INSERT INTO dedup.review_items (record_a_id, record_b_id, score)
VALUES ($1, $2, $3)
ON CONFLICT (record_a_id, record_b_id) WHERE status = 'pending' DO NOTHING`

	if _, err := tx.Exec(ctx, q, recordA, recordB, score); err != nil {
		return fmt.Errorf("enqueue review item %d-%d: %w", recordA, recordB, err)
	}
	return nil
}

// ListPendingReviewItems pages the review queue, highest score first so the
// likeliest duplicates surface at the top.
func (p *Pool) ListPendingReviewItems(ctx context.Context, limit, offset int) ([]ReviewItemRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT review_item_id, review_item_uuid::text, record_a_id, record_b_id,
	score, status::text, resolution, resolved_by, resolved_at, created_at
FROM dedup.review_items
WHERE status = 'pending'
ORDER BY score DESC, review_item_id
LIMIT $1 OFFSET $2`

	rows, err := p.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending review items: %w", err)
	}
	defer rows.Close()

	var out []ReviewItemRow
	for rows.Next() {
		var row ReviewItemRow
		err := rows.Scan(&row.ReviewItemID, &row.ReviewItemUUID, &row.RecordAID, &row.RecordBID,
			&row.Score, &row.Status, &row.Resolution, &row.ResolvedBy, &row.ResolvedAt, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetReviewItem fetches one review item.
func (p *Pool) GetReviewItem(ctx context.Context, reviewItemID int64) (*ReviewItemRow, error) {
	const q = `
SELECT review_item_id, review_item_uuid::text, record_a_id, record_b_id,
	score, status::text, resolution, resolved_by, resolved_at, created_at
FROM dedup.review_items
WHERE review_item_id = $1`

	var row ReviewItemRow
	err := p.QueryRow(ctx, q, reviewItemID).Scan(
		&row.ReviewItemID, &row.ReviewItemUUID, &row.RecordAID, &row.RecordBID,
		&row.Score, &row.Status, &row.Resolution, &row.ResolvedBy, &row.ResolvedAt, &row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ResolveReviewItem closes a pending item as promoted or discarded. Returns
// ErrNoRows when the item is missing or already resolved.
func ResolveReviewItem(ctx context.Context, tx Tx, reviewItemID int64, status, resolution, resolvedBy string) error {
	const q = `
UPDATE dedup.review_items SET
	status = $2,
	resolution = $3,
	resolved_by = $4,
	resolved_at = now()
WHERE review_item_id = $1
  AND status = 'pending'`

	tag, err := tx.Exec(ctx, q, reviewItemID, status, resolution, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolve review item %d: %w", reviewItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// InsertResolutionEvent records one resolver decision in the audit trail.
func InsertResolutionEvent(ctx context.Context, tx Tx, recordID, clusterID int64, decision string, edgeCount, possibles int, warnings []string, confidence float64) error {
	var warningsJSON []byte
	if len(warnings) > 0 {
		var err error
		warningsJSON, err = json.Marshal(warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings: %w", err)
		}
	}

	const q = `
INSERT INTO dedup.resolution_events (record_id, cluster_id, decision, edge_count, possibles, warnings, confidence)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, q, recordID, clusterID, decision, edgeCount, possibles, warningsJSON, confidence); err != nil {
		return fmt.Errorf("insert resolution event for record %d: %w", recordID, err)
	}
	return nil
}

// ListResolutionEvents returns the newest decisions for one record.
func (p *Pool) ListResolutionEvents(ctx context.Context, recordID int64, limit int) ([]ResolutionEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT event_id, event_uuid::text, record_id, cluster_id, decision,
	edge_count, possibles, warnings, confidence, created_at
FROM dedup.resolution_events
WHERE record_id = $1
ORDER BY event_id DESC
LIMIT $2`

	rows, err := p.Query(ctx, q, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("list resolution events for record %d: %w", recordID, err)
	}
	defer rows.Close()

	var out []ResolutionEvent
	for rows.Next() {
		var ev ResolutionEvent
		err := rows.Scan(&ev.EventID, &ev.EventUUID, &ev.RecordID, &ev.ClusterID, &ev.Decision,
			&ev.EdgeCount, &ev.Possibles, &ev.Warnings, &ev.Confidence, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan resolution event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
