package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ClusterSummaryRow is the listing read model for clusters.
type ClusterSummaryRow struct {
	ClusterID         int64     `json:"cluster_id"`
	ClusterUUID       string    `json:"cluster_uuid"`
	Kind              string    `json:"kind"`
	CanonicalRecordID int64     `json:"canonical_record_id"`
	CanonicalLabel    *string   `json:"canonical_label,omitempty"`
	MemberCount       int       `json:"member_count"`
	Confidence        float64   `json:"confidence"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ClusterMemberRow is one member record within cluster detail output.
type ClusterMemberRow struct {
	RecordID     int64     `json:"record_id"`
	RecordUUID   string    `json:"record_uuid"`
	Source       string    `json:"source"`
	SourceItemID string    `json:"source_item_id"`
	Title        *string   `json:"title,omitempty"`
	OrgName      string    `json:"org_name"`
	City         *string   `json:"city,omitempty"`
	Province     *string   `json:"province,omitempty"`
	PostedAt     time.Time `json:"posted_at"`
	QualityScore int       `json:"quality_score"`
	IsCanonical  bool      `json:"is_canonical"`
}

// UpsertCluster writes the cluster row for a (possibly new) cluster id.
func UpsertCluster(ctx context.Context, tx Tx, clusterID int64, kind string, canonicalRecordID int64, memberCount int, confidence float64) error {
	const q = `
INSERT INTO dedup.clusters (cluster_id, kind, canonical_record_id, member_count, confidence)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cluster_id) DO UPDATE SET
	canonical_record_id = EXCLUDED.canonical_record_id,
	member_count = EXCLUDED.member_count,
	confidence = EXCLUDED.confidence,
	updated_at = now()`

	if _, err := tx.Exec(ctx, q, clusterID, kind, canonicalRecordID, memberCount, confidence); err != nil {
		return fmt.Errorf("upsert cluster %d: %w", clusterID, err)
	}
	return nil
}

// DeleteCluster removes a cluster row that lost all members to a merge or
// split.
func DeleteCluster(ctx context.Context, tx Tx, clusterID int64) error {
	const q = `DELETE FROM dedup.clusters WHERE cluster_id = $1`
	if _, err := tx.Exec(ctx, q, clusterID); err != nil {
		return fmt.Errorf("delete cluster %d: %w", clusterID, err)
	}
	return nil
}

// ListClusters pages the cluster listing, optionally filtered by kind and
// minimum size.
func (p *Pool) ListClusters(ctx context.Context, kind string, minSize, limit, offset int) ([]ClusterSummaryRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if minSize < 1 {
		minSize = 1
	}
	kind = strings.ToLower(strings.TrimSpace(kind))

	const q = `
SELECT
	c.cluster_id,
	c.cluster_uuid::text,
	c.kind::text,
	c.canonical_record_id,
	COALESCE(r.title, r.org_name),
	c.member_count,
	c.confidence,
	c.updated_at
FROM dedup.clusters c
LEFT JOIN dedup.records r
	ON r.record_id = c.canonical_record_id
WHERE ($1 = '' OR c.kind::text = $1)
  AND c.member_count >= $2
ORDER BY c.member_count DESC, c.cluster_id
LIMIT $3 OFFSET $4`

	rows, err := p.Query(ctx, q, kind, minSize, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var out []ClusterSummaryRow
	for rows.Next() {
		var row ClusterSummaryRow
		err := rows.Scan(&row.ClusterID, &row.ClusterUUID, &row.Kind, &row.CanonicalRecordID,
			&row.CanonicalLabel, &row.MemberCount, &row.Confidence, &row.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetClusterMembers returns the cluster's member rows, canonical first.
func (p *Pool) GetClusterMembers(ctx context.Context, clusterID int64) ([]ClusterMemberRow, error) {
	const q = `
SELECT
	record_id, record_uuid::text, source, source_item_id,
	title, org_name, city, province, posted_at, quality_score, is_canonical
FROM dedup.records
WHERE cluster_id = $1
  AND status = 'resolved'
ORDER BY is_canonical DESC, quality_score DESC, record_id`

	rows, err := p.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("get cluster %d members: %w", clusterID, err)
	}
	defer rows.Close()

	var out []ClusterMemberRow
	for rows.Next() {
		var row ClusterMemberRow
		err := rows.Scan(&row.RecordID, &row.RecordUUID, &row.Source, &row.SourceItemID,
			&row.Title, &row.OrgName, &row.City, &row.Province, &row.PostedAt,
			&row.QualityScore, &row.IsCanonical)
		if err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpdateRecordPlacement rewrites a record's cluster assignment after a merge
// or split touched it.
func UpdateRecordPlacement(ctx context.Context, tx Tx, recordID, clusterID int64, isCanonical bool) error {
	const q = `
UPDATE dedup.records SET
	cluster_id = $2,
	is_canonical = $3,
	updated_at = now()
WHERE record_id = $1`

	tag, err := tx.Exec(ctx, q, recordID, clusterID, isCanonical)
	if err != nil {
		return fmt.Errorf("update placement of record %d: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update placement of record %d: no row updated", recordID)
	}
	return nil
}
