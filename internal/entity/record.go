package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Kind discriminates the two record families the resolver understands.
type Kind string

const (
	KindJob          Kind = "job"
	KindOrganization Kind = "organization"
)

func (k Kind) Valid() bool {
	return k == KindJob || k == KindOrganization
}

// Record is a normalized entity instance as supplied by the upstream
// normalization stage. The attribute fields are replaced wholesale when a
// record is re-normalized; they are never patched individually mid-pipeline.
type Record struct {
	ID           int64
	RecordUUID   string
	Kind         Kind
	Source       string
	SourceItemID string
	SourceURL    string

	// Job attributes.
	Title       string
	OrgName     string
	OrgID       *int64
	City        string
	Province    string
	Description string

	// Organization attributes. OrgName, City and Province are shared.
	Industry      string
	Website       string
	ContactEmail  string
	ContactPhone  string
	EmployeeCount int

	// Language of the descriptive text (ISO 639-1), detected at ingest.
	Language string

	PostedAt     time.Time
	QualityScore int
}

// Validate reports whether the record carries the normalized fields the
// matcher requires for its kind. A record failing this check is skipped as a
// candidate and rejected as pipeline input.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("record %d has unknown kind %q", r.ID, r.Kind)
	}
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("record %d is missing source", r.ID)
	}
	switch r.Kind {
	case KindJob:
		if strings.TrimSpace(r.Title) == "" {
			return fmt.Errorf("job record %d is missing title", r.ID)
		}
		if strings.TrimSpace(r.OrgName) == "" {
			return fmt.Errorf("job record %d is missing organization name", r.ID)
		}
	case KindOrganization:
		if strings.TrimSpace(r.OrgName) == "" {
			return fmt.Errorf("organization record %d is missing name", r.ID)
		}
	}
	if r.PostedAt.IsZero() {
		return fmt.Errorf("record %d is missing posted_at", r.ID)
	}
	if r.QualityScore < 0 || r.QualityScore > 100 {
		return fmt.Errorf("record %d has quality score %d outside [0,100]", r.ID, r.QualityScore)
	}
	return nil
}

// DescriptiveText returns the long-form text used for near-duplicate
// sketching and description scoring.
func (r *Record) DescriptiveText() string {
	switch r.Kind {
	case KindJob:
		return r.Description
	case KindOrganization:
		if r.Industry == "" {
			return r.OrgName
		}
		return r.OrgName + " " + r.Industry
	default:
		return ""
	}
}

// DisplayName is the human-readable label for the record, used by tie-break
// ordering of the canonical selector.
func (r *Record) DisplayName() string {
	if r.Kind == KindJob {
		return r.Title
	}
	return r.OrgName
}

var legalSuffixes = []string{
	"(pty) ltd", "pty ltd", "(pty)", "ltd", "limited", "inc", "incorporated",
	"llc", "llp", "plc", "cc", "npc", "gmbh", "bv", "sa", "corp", "corporation",
	"co", "company", "holdings", "group",
}

// NormalizeOrgName lowercases, strips punctuation, and removes trailing
// legal-entity suffixes so "Google (Pty) Ltd" and "google" key identically.
func NormalizeOrgName(name string) string {
	n := NormalizeText(name)
	if n == "" {
		return ""
	}
	n = stripPunct(n)
	changed := true
	for changed {
		changed = false
		for _, suffix := range legalSuffixes {
			bare := stripPunct(suffix)
			if n == bare {
				continue
			}
			if strings.HasSuffix(n, " "+bare) {
				n = strings.TrimSpace(strings.TrimSuffix(n, " "+bare))
				changed = true
			}
		}
	}
	return n
}

// NormalizeTitle lowercases the job title and removes any embedded mention of
// the employing organization, so "Senior Developer - Google" and "Senior
// Developer" hash identically for the same employer.
func NormalizeTitle(title, orgName string) string {
	t := stripPunct(NormalizeText(title))
	if t == "" {
		return ""
	}
	org := NormalizeOrgName(orgName)
	if org != "" {
		t = strings.ReplaceAll(" "+t+" ", " "+org+" ", " ")
		t = NormalizeText(t)
	}
	return t
}

// NormalizeText collapses whitespace, lowercases, and drops control runes.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
