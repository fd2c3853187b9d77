package db

import (
	"context"
	"fmt"
	"time"
)

// EdgeRow is the read model for stored match edges.
type EdgeRow struct {
	EdgeID        int64      `json:"edge_id"`
	RecordAID     int64      `json:"record_a_id"`
	RecordBID     int64      `json:"record_b_id"`
	EdgeType      string     `json:"edge_type"`
	Score         float64    `json:"score"`
	Status        string     `json:"status"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// UpsertEdge stores one accepted edge inside the caller's transaction. A
// replayed pair is left untouched, matching the in-memory graph's no-op on
// duplicate pairs.
func UpsertEdge(ctx context.Context, tx Tx, recordA, recordB int64, edgeType string, score float64) error {
	if recordA >= recordB {
		return fmt.Errorf("edge pair (%d, %d) not in canonical order", recordA, recordB)
	}

	const q = `
INSERT INTO dedup.match_edges (record_a_id, record_b_id, edge_type, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (record_a_id, record_b_id) DO NOTHING`

	if _, err := tx.Exec(ctx, q, recordA, recordB, edgeType, score); err != nil {
		return fmt.Errorf("upsert edge %d-%d: %w", recordA, recordB, err)
	}
	return nil
}

// InvalidateEdgeRow flips a stored edge to invalidated. Returns ErrNoRows
// when no active edge exists for the pair.
func InvalidateEdgeRow(ctx context.Context, tx Tx, recordA, recordB int64) error {
	if recordB < recordA {
		recordA, recordB = recordB, recordA
	}

	const q = `
UPDATE dedup.match_edges SET
	status = 'invalidated',
	invalidated_at = now()
WHERE record_a_id = $1
  AND record_b_id = $2
  AND status = 'active'`

	tag, err := tx.Exec(ctx, q, recordA, recordB)
	if err != nil {
		return fmt.Errorf("invalidate edge %d-%d: %w", recordA, recordB, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ListActiveEdges streams every active edge, used for startup replay.
func (p *Pool) ListActiveEdges(ctx context.Context, fn func(EdgeRow) error) error {
	const q = `
SELECT edge_id, record_a_id, record_b_id, edge_type, score, status, invalidated_at, created_at
FROM dedup.match_edges
WHERE status = 'active'
ORDER BY edge_id`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("list active edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row EdgeRow
		err := rows.Scan(&row.EdgeID, &row.RecordAID, &row.RecordBID, &row.EdgeType,
			&row.Score, &row.Status, &row.InvalidatedAt, &row.CreatedAt)
		if err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListEdgesForRecord returns every edge touching the record, newest first.
func (p *Pool) ListEdgesForRecord(ctx context.Context, recordID int64) ([]EdgeRow, error) {
	const q = `
SELECT edge_id, record_a_id, record_b_id, edge_type, score, status, invalidated_at, created_at
FROM dedup.match_edges
WHERE record_a_id = $1 OR record_b_id = $1
ORDER BY created_at DESC, edge_id DESC`

	rows, err := p.Query(ctx, q, recordID)
	if err != nil {
		return nil, fmt.Errorf("list edges for record %d: %w", recordID, err)
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var row EdgeRow
		err := rows.Scan(&row.EdgeID, &row.RecordAID, &row.RecordBID, &row.EdgeType,
			&row.Score, &row.Status, &row.InvalidatedAt, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListEdgesForCluster returns every edge with at least one endpoint placed in
// the cluster, not just edges touching the lowest-id member.
func (p *Pool) ListEdgesForCluster(ctx context.Context, clusterID int64) ([]EdgeRow, error) {
	const q = `
SELECT DISTINCT e.edge_id, e.record_a_id, e.record_b_id, e.edge_type, e.score, e.status, e.invalidated_at, e.created_at
FROM dedup.match_edges e
JOIN dedup.records r ON r.record_id IN (e.record_a_id, e.record_b_id)
WHERE r.cluster_id = $1
ORDER BY e.created_at DESC, e.edge_id DESC`

	rows, err := p.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list edges for cluster %d: %w", clusterID, err)
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var row EdgeRow
		err := rows.Scan(&row.EdgeID, &row.RecordAID, &row.RecordBID, &row.EdgeType,
			&row.Score, &row.Status, &row.InvalidatedAt, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
