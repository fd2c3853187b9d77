package db

import (
	"context"
	"fmt"
	"time"
)

// SubmitRecordParams carries one normalized record into dedup.records.
type SubmitRecordParams struct {
	Kind          string
	Source        string
	SourceItemID  string
	SourceURL     *string
	Title         *string
	OrgName       string
	OrgID         *int64
	City          *string
	Province      *string
	Description   *string
	Industry      *string
	Website       *string
	ContactEmail  *string
	ContactPhone  *string
	EmployeeCount int
	Language      *string
	PostedAt      time.Time
	QualityScore  int
}

// SubmitRecord inserts a pending record, or refreshes the attributes of the
// existing row for the same (source, source_item_id, kind) and re-queues it.
func (p *Pool) SubmitRecord(ctx context.Context, params SubmitRecordParams) (int64, error) {
	const q = `
INSERT INTO dedup.records (
	kind, source, source_item_id, source_url,
	title, org_name, org_id, city, province, description,
	industry, website, contact_email, contact_phone, employee_count,
	language, posted_at, quality_score, status
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15,
	$16, $17, $18, 'pending'
)
ON CONFLICT (source, source_item_id, kind) DO UPDATE SET
	source_url = EXCLUDED.source_url,
	title = EXCLUDED.title,
	org_name = EXCLUDED.org_name,
	org_id = EXCLUDED.org_id,
	city = EXCLUDED.city,
	province = EXCLUDED.province,
	description = EXCLUDED.description,
	industry = EXCLUDED.industry,
	website = EXCLUDED.website,
	contact_email = EXCLUDED.contact_email,
	contact_phone = EXCLUDED.contact_phone,
	employee_count = EXCLUDED.employee_count,
	language = EXCLUDED.language,
	posted_at = EXCLUDED.posted_at,
	quality_score = EXCLUDED.quality_score,
	status = 'pending',
	error_message = NULL,
	updated_at = now()
RETURNING record_id`

	var recordID int64
	err := p.QueryRow(ctx, q,
		params.Kind, params.Source, params.SourceItemID, params.SourceURL,
		params.Title, params.OrgName, params.OrgID, params.City, params.Province, params.Description,
		params.Industry, params.Website, params.ContactEmail, params.ContactPhone, params.EmployeeCount,
		params.Language, params.PostedAt.UTC(), params.QualityScore,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("submit record: %w", err)
	}
	return recordID, nil
}

// ClaimPendingRecord locks and returns the oldest pending record inside the
// caller's transaction. Returns ErrNoRows when the queue is empty. SKIP
// LOCKED keeps concurrent workers from contending on the same row.
func ClaimPendingRecord(ctx context.Context, tx Tx) (*Record, error) {
	const q = `
SELECT
	record_id, record_uuid::text, kind, source, source_item_id, source_url,
	title, org_name, org_id, city, province, description,
	industry, website, contact_email, contact_phone, employee_count,
	language, posted_at, quality_score
FROM dedup.records
WHERE status = 'pending'
ORDER BY record_id
FOR UPDATE SKIP LOCKED
LIMIT 1`

	var rec Record
	err := tx.QueryRow(ctx, q).Scan(
		&rec.RecordID, &rec.RecordUUID, &rec.Kind, &rec.Source, &rec.SourceItemID, &rec.SourceURL,
		&rec.Title, &rec.OrgName, &rec.OrgID, &rec.City, &rec.Province, &rec.Description,
		&rec.Industry, &rec.Website, &rec.ContactEmail, &rec.ContactPhone, &rec.EmployeeCount,
		&rec.Language, &rec.PostedAt, &rec.QualityScore,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkRecordResolved finalizes a processed record with its placement and
// fingerprint material.
func MarkRecordResolved(ctx context.Context, tx Tx, recordID, clusterID int64, isCanonical bool, exactHash, sketch []byte) error {
	const q = `
UPDATE dedup.records SET
	status = 'resolved',
	cluster_id = $2,
	is_canonical = $3,
	exact_hash = $4,
	sketch = $5,
	processed_at = now(),
	error_message = NULL,
	updated_at = now()
WHERE record_id = $1`

	tag, err := tx.Exec(ctx, q, recordID, clusterID, isCanonical, exactHash, sketch)
	if err != nil {
		return fmt.Errorf("mark record %d resolved: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark record %d resolved: no row updated", recordID)
	}
	return nil
}

// MarkRecordFailed parks a record that could not be resolved.
func MarkRecordFailed(ctx context.Context, tx Tx, recordID int64, reason string) error {
	const q = `
UPDATE dedup.records SET
	status = 'failed',
	error_message = $2,
	processed_at = now(),
	updated_at = now()
WHERE record_id = $1`

	if _, err := tx.Exec(ctx, q, recordID, reason); err != nil {
		return fmt.Errorf("mark record %d failed: %w", recordID, err)
	}
	return nil
}

// GetRecord fetches one record row.
func (p *Pool) GetRecord(ctx context.Context, recordID int64) (*Record, error) {
	const q = `
SELECT
	record_id, record_uuid::text, kind, source, source_item_id, source_url,
	title, org_name, org_id, city, province, description,
	industry, website, contact_email, contact_phone, employee_count,
	language, posted_at, quality_score,
	status, cluster_id, is_canonical, processed_at, error_message,
	created_at, updated_at
FROM dedup.records
WHERE record_id = $1`

	var rec Record
	err := p.QueryRow(ctx, q, recordID).Scan(
		&rec.RecordID, &rec.RecordUUID, &rec.Kind, &rec.Source, &rec.SourceItemID, &rec.SourceURL,
		&rec.Title, &rec.OrgName, &rec.OrgID, &rec.City, &rec.Province, &rec.Description,
		&rec.Industry, &rec.Website, &rec.ContactEmail, &rec.ContactPhone, &rec.EmployeeCount,
		&rec.Language, &rec.PostedAt, &rec.QualityScore,
		&rec.Status, &rec.ClusterID, &rec.IsCanonical, &rec.ProcessedAt, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListResolvedRecords streams every resolved record, used to rebuild the
// in-memory state at startup. Order by record id so edge replay sees both
// endpoints of any stored edge once the higher id arrives.
func (p *Pool) ListResolvedRecords(ctx context.Context, fn func(*Record) error) error {
	const q = `
SELECT
	record_id, record_uuid::text, kind, source, source_item_id, source_url,
	title, org_name, org_id, city, province, description,
	industry, website, contact_email, contact_phone, employee_count,
	language, posted_at, quality_score
FROM dedup.records
WHERE status = 'resolved'
ORDER BY record_id`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("list resolved records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.RecordID, &rec.RecordUUID, &rec.Kind, &rec.Source, &rec.SourceItemID, &rec.SourceURL,
			&rec.Title, &rec.OrgName, &rec.OrgID, &rec.City, &rec.Province, &rec.Description,
			&rec.Industry, &rec.Website, &rec.ContactEmail, &rec.ContactPhone, &rec.EmployeeCount,
			&rec.Language, &rec.PostedAt, &rec.QualityScore,
		)
		if err != nil {
			return fmt.Errorf("scan resolved record: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountRecordsByStatus is the health/stats read for the ingest queue.
func (p *Pool) CountRecordsByStatus(ctx context.Context) (map[string]int64, error) {
	const q = `
SELECT status::text, COUNT(*)
FROM dedup.records
GROUP BY status`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
