package db

import (
	"encoding/json"
	"time"
)

// Record maps dedup.records: one normalized posting or organization profile
// as submitted for resolution.
type Record struct {
	RecordID     int64  `gorm:"column:record_id;primaryKey;autoIncrement"`
	RecordUUID   string `gorm:"column:record_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Kind         string `gorm:"column:kind;type:dedup.record_kind;not null"`
	Source       string `gorm:"column:source;type:text;not null"`
	SourceItemID string `gorm:"column:source_item_id;type:text;not null"`
	SourceURL    *string `gorm:"column:source_url;type:text"`

	Title         *string `gorm:"column:title;type:text"`
	OrgName       string  `gorm:"column:org_name;type:text;not null"`
	OrgID         *int64  `gorm:"column:org_id;type:bigint"`
	City          *string `gorm:"column:city;type:text"`
	Province      *string `gorm:"column:province;type:text"`
	Description   *string `gorm:"column:description;type:text"`
	Industry      *string `gorm:"column:industry;type:text"`
	Website       *string `gorm:"column:website;type:text"`
	ContactEmail  *string `gorm:"column:contact_email;type:text"`
	ContactPhone  *string `gorm:"column:contact_phone;type:text"`
	EmployeeCount int     `gorm:"column:employee_count;type:integer;not null;default:0"`
	Language      *string `gorm:"column:language;type:text"`

	PostedAt     time.Time `gorm:"column:posted_at;type:timestamptz;not null"`
	QualityScore int       `gorm:"column:quality_score;type:integer;not null;default:0"`

	ExactHash []byte `gorm:"column:exact_hash;type:bytea"`
	Sketch    []byte `gorm:"column:sketch;type:bytea"`

	Status       string     `gorm:"column:status;type:dedup.record_status;not null;default:pending"`
	ClusterID    *int64     `gorm:"column:cluster_id;type:bigint"`
	IsCanonical  bool       `gorm:"column:is_canonical;type:boolean;not null;default:false"`
	ProcessedAt  *time.Time `gorm:"column:processed_at;type:timestamptz"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Record) TableName() string { return "dedup.records" }

// MatchEdge maps dedup.match_edges. RecordAID < RecordBID always holds.
type MatchEdge struct {
	EdgeID        int64      `gorm:"column:edge_id;primaryKey;autoIncrement"`
	EdgeUUID      string     `gorm:"column:edge_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RecordAID     int64      `gorm:"column:record_a_id;type:bigint;not null"`
	RecordBID     int64      `gorm:"column:record_b_id;type:bigint;not null"`
	EdgeType      string     `gorm:"column:edge_type;type:dedup.match_edge_type;not null"`
	Score         float64    `gorm:"column:score;type:double precision;not null"`
	Status        string     `gorm:"column:status;type:dedup.edge_status;not null;default:active"`
	InvalidatedAt *time.Time `gorm:"column:invalidated_at;type:timestamptz"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (MatchEdge) TableName() string { return "dedup.match_edges" }

// Cluster maps dedup.clusters. The cluster id is the lowest member record id,
// so it is assigned by the resolver, never by the sequence.
type Cluster struct {
	ClusterID         int64     `gorm:"column:cluster_id;primaryKey"`
	ClusterUUID       string    `gorm:"column:cluster_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Kind              string    `gorm:"column:kind;type:dedup.record_kind;not null"`
	CanonicalRecordID int64     `gorm:"column:canonical_record_id;type:bigint;not null"`
	MemberCount       int       `gorm:"column:member_count;type:integer;not null;default:1"`
	Confidence        float64   `gorm:"column:confidence;type:double precision;not null;default:1"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Cluster) TableName() string { return "dedup.clusters" }

// ReviewItem maps dedup.review_items: a scored pair in the possible band,
// parked for a human decision.
type ReviewItem struct {
	ReviewItemID   int64      `gorm:"column:review_item_id;primaryKey;autoIncrement"`
	ReviewItemUUID string     `gorm:"column:review_item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RecordAID      int64      `gorm:"column:record_a_id;type:bigint;not null"`
	RecordBID      int64      `gorm:"column:record_b_id;type:bigint;not null"`
	Score          float64    `gorm:"column:score;type:double precision;not null"`
	Status         string     `gorm:"column:status;type:dedup.review_status;not null;default:pending"`
	Resolution     *string    `gorm:"column:resolution;type:text"`
	ResolvedBy     *string    `gorm:"column:resolved_by;type:text"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at;type:timestamptz"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ReviewItem) TableName() string { return "dedup.review_items" }

// ResolutionEvent maps dedup.resolution_events: the audit trail of every
// resolver decision for a record.
type ResolutionEvent struct {
	EventID    int64           `gorm:"column:event_id;primaryKey;autoIncrement"`
	EventUUID  string          `gorm:"column:event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RecordID   int64           `gorm:"column:record_id;type:bigint;not null"`
	ClusterID  int64           `gorm:"column:cluster_id;type:bigint;not null"`
	Decision   string          `gorm:"column:decision;type:text;not null"`
	EdgeCount  int             `gorm:"column:edge_count;type:integer;not null;default:0"`
	Possibles  int             `gorm:"column:possibles;type:integer;not null;default:0"`
	Warnings   json.RawMessage `gorm:"column:warnings;type:jsonb"`
	Confidence float64         `gorm:"column:confidence;type:double precision;not null;default:1"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ResolutionEvent) TableName() string { return "dedup.resolution_events" }

func autoMigrateModels() []any {
	return []any{
		&Record{},
		&MatchEdge{},
		&Cluster{},
		&ReviewItem{},
		&ResolutionEvent{},
	}
}
