package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// JobWeights are the similarity signal weights for job records. The weights
// of a kind must sum to 1.
type JobWeights struct {
	Title        float64 `envconfig:"JOB_WEIGHT_TITLE" default:"0.30"`
	Organization float64 `envconfig:"JOB_WEIGHT_ORGANIZATION" default:"0.25"`
	Location     float64 `envconfig:"JOB_WEIGHT_LOCATION" default:"0.15"`
	Description  float64 `envconfig:"JOB_WEIGHT_DESCRIPTION" default:"0.20"`
	Temporal     float64 `envconfig:"JOB_WEIGHT_TEMPORAL" default:"0.10"`
}

// OrgWeights are the similarity signal weights for organization records.
type OrgWeights struct {
	Name     float64 `envconfig:"ORG_WEIGHT_NAME" default:"0.40"`
	Location float64 `envconfig:"ORG_WEIGHT_LOCATION" default:"0.20"`
	Industry float64 `envconfig:"ORG_WEIGHT_INDUSTRY" default:"0.15"`
	Website  float64 `envconfig:"ORG_WEIGHT_WEBSITE" default:"0.15"`
	Contact  float64 `envconfig:"ORG_WEIGHT_CONTACT" default:"0.10"`
}

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"JS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"JS_DB_MAX_CONNS" default:"8"`

	// Match thresholds. Possible < FuzzyAccept < Near is enforced.
	NearThreshold        float64 `envconfig:"NEAR_THRESHOLD" default:"0.85"`
	FuzzyAcceptThreshold float64 `envconfig:"FUZZY_ACCEPT_THRESHOLD" default:"0.75"`
	PossibleThreshold    float64 `envconfig:"POSSIBLE_THRESHOLD" default:"0.60"`

	// Fingerprinting.
	ShingleSize   int `envconfig:"SHINGLE_SIZE" default:"5"`
	SignatureSize int `envconfig:"SIGNATURE_SIZE" default:"128"`

	// Clustering policy.
	RepostingWindowDays    int  `envconfig:"REPOSTING_WINDOW_DAYS" default:"30"`
	RepostingMergeEnabled  bool `envconfig:"REPOSTING_MERGE_ENABLED" default:"false"`
	LargeEmployerThreshold int  `envconfig:"LARGE_EMPLOYER_THRESHOLD" default:"500"`

	// Comma-separated source names, most authoritative first. Sources not in
	// the list rank after every listed source.
	SourceAuthority string `envconfig:"SOURCE_AUTHORITY" default:"company-site,professional-network,aggregator"`

	// Admin API credentials. The password is stored bcrypt-hashed.
	AdminUser         string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" default:""`

	JobWeights JobWeights
	OrgWeights OrgWeights
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

const weightSumTolerance = 0.001

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("JS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("JS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("JS_DB_MIN_CONNS (%d) cannot exceed JS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.PossibleThreshold <= 0 || c.PossibleThreshold >= 1 {
		return fmt.Errorf("POSSIBLE_THRESHOLD must be in (0,1)")
	}
	if c.FuzzyAcceptThreshold <= c.PossibleThreshold {
		return fmt.Errorf("FUZZY_ACCEPT_THRESHOLD (%.2f) must exceed POSSIBLE_THRESHOLD (%.2f)", c.FuzzyAcceptThreshold, c.PossibleThreshold)
	}
	if c.NearThreshold <= c.FuzzyAcceptThreshold || c.NearThreshold > 1 {
		return fmt.Errorf("NEAR_THRESHOLD (%.2f) must be in (FUZZY_ACCEPT_THRESHOLD, 1]", c.NearThreshold)
	}

	if c.ShingleSize < 2 {
		return fmt.Errorf("SHINGLE_SIZE must be >= 2")
	}
	if c.SignatureSize < 16 {
		return fmt.Errorf("SIGNATURE_SIZE must be >= 16")
	}
	if c.RepostingWindowDays < 1 {
		return fmt.Errorf("REPOSTING_WINDOW_DAYS must be >= 1")
	}
	if c.LargeEmployerThreshold < 1 {
		return fmt.Errorf("LARGE_EMPLOYER_THRESHOLD must be >= 1")
	}
	if len(c.SourceAuthorityList()) == 0 {
		return fmt.Errorf("SOURCE_AUTHORITY must name at least one source")
	}
	if strings.TrimSpace(c.AdminUser) == "" {
		return fmt.Errorf("ADMIN_USER is required")
	}

	jobSum := c.JobWeights.Title + c.JobWeights.Organization + c.JobWeights.Location +
		c.JobWeights.Description + c.JobWeights.Temporal
	if math.Abs(jobSum-1) > weightSumTolerance {
		return fmt.Errorf("job signal weights sum to %.3f, want 1.0", jobSum)
	}
	orgSum := c.OrgWeights.Name + c.OrgWeights.Location + c.OrgWeights.Industry +
		c.OrgWeights.Website + c.OrgWeights.Contact
	if math.Abs(orgSum-1) > weightSumTolerance {
		return fmt.Errorf("organization signal weights sum to %.3f, want 1.0", orgSum)
	}

	return nil
}

// SourceAuthorityList returns the configured authority order, most
// authoritative first, with duplicates and blanks removed.
func (c *Config) SourceAuthorityList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.SourceAuthority, ",")
	sources := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		source := strings.ToLower(strings.TrimSpace(part))
		if source == "" {
			continue
		}
		if _, exists := seen[source]; exists {
			continue
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}
	return sources
}
