// Package scoring computes the weighted multi-signal similarity between two
// candidate records of the same kind.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/textsim"
)

// Classification is the decision band a pairwise score falls into.
type Classification string

const (
	ClassAccepted Classification = "accepted"
	ClassPossible Classification = "possible"
	ClassRejected Classification = "rejected"
)

// Thresholds drive match classification. Values come from configuration and
// satisfy Possible < FuzzyAccept < Near.
type Thresholds struct {
	Near        float64
	FuzzyAccept float64
	Possible    float64
}

func (t Thresholds) Classify(score float64) Classification {
	switch {
	case score >= t.FuzzyAccept:
		return ClassAccepted
	case score >= t.Possible:
		return ClassPossible
	default:
		return ClassRejected
	}
}

// Scorer holds the per-kind signal weights. Score is symmetric and returns a
// value in [0,1]; calling it on records of different kinds is an error.
type Scorer struct {
	jobWeights config.JobWeights
	orgWeights config.OrgWeights
}

func NewScorer(jobWeights config.JobWeights, orgWeights config.OrgWeights) *Scorer {
	return &Scorer{
		jobWeights: jobWeights,
		orgWeights: orgWeights,
	}
}

func (s *Scorer) Score(a, b *entity.Record) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("score requires two records")
	}
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("cannot score %s record %d against %s record %d", a.Kind, a.ID, b.Kind, b.ID)
	}

	var score float64
	switch a.Kind {
	case entity.KindJob:
		w := s.jobWeights
		score = w.Title*nameSimilarity(entity.NormalizeTitle(a.Title, a.OrgName), entity.NormalizeTitle(b.Title, b.OrgName)) +
			w.Organization*organizationSignal(a, b) +
			w.Location*LocationSignal(a, b) +
			w.Description*descriptionSignal(a, b) +
			w.Temporal*temporalProximity(a.PostedAt, b.PostedAt)
	case entity.KindOrganization:
		w := s.orgWeights
		score = w.Name*nameSimilarity(entity.NormalizeOrgName(a.OrgName), entity.NormalizeOrgName(b.OrgName)) +
			w.Location*LocationSignal(a, b) +
			w.Industry*industrySignal(a, b) +
			w.Website*domainSignal(a, b) +
			w.Contact*contactOverlap(a, b)
	default:
		return 0, fmt.Errorf("unknown record kind %q", a.Kind)
	}

	return clamp01(score), nil
}

// nameSimilarity takes the best of an edit-distance similarity, a token-set
// Jaccard and a character-trigram Jaccard. Each covers a failure mode of the
// others: close spelling, reordered tokens, and shifted or concatenated
// substrings.
func nameSimilarity(left, right string) float64 {
	if left == "" || right == "" {
		return 0
	}
	return math.Max(textsim.JaroWinkler(left, right),
		math.Max(textsim.TokenJaccard(left, right), textsim.TrigramJaccard(left, right)))
}

func organizationSignal(a, b *entity.Record) float64 {
	if a.OrgID != nil && b.OrgID != nil {
		if *a.OrgID == *b.OrgID {
			return 1
		}
		return 0
	}
	return nameSimilarity(entity.NormalizeOrgName(a.OrgName), entity.NormalizeOrgName(b.OrgName))
}

// LocationSignal scores 1.0 for the same city, 0.5 for the same province
// only, otherwise 0. Exported because the match pipeline's large-employer
// guard reuses it.
func LocationSignal(a, b *entity.Record) float64 {
	cityA, cityB := entity.NormalizeText(a.City), entity.NormalizeText(b.City)
	if cityA != "" && cityA == cityB {
		return 1
	}
	provA, provB := entity.NormalizeText(a.Province), entity.NormalizeText(b.Province)
	if provA != "" && provA == provB {
		return 0.5
	}
	return 0
}

// descriptionSignal is the token Jaccard of the descriptive texts. Records in
// different detected languages score 0; translated postings should not merge
// on token coincidence.
func descriptionSignal(a, b *entity.Record) float64 {
	if a.Language != "" && b.Language != "" && a.Language != b.Language {
		return 0
	}
	left, right := a.DescriptiveText(), b.DescriptiveText()
	if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
		return 0
	}
	return textsim.TokenJaccard(left, right)
}

// temporalProximity mirrors the tiered date consistency used upstream,
// extended out to the 30-day reposting window.
func temporalProximity(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	diff := math.Abs(a.UTC().Sub(b.UTC()).Hours())
	switch {
	case diff <= 48:
		return 1
	case diff <= 7*24:
		return 0.6
	case diff <= 30*24:
		return 0.25
	default:
		return 0
	}
}

// industrySignal falls back to trigram overlap because industry labels are
// short morphological variants ("retail" vs "retailing") that share no whole
// token.
func industrySignal(a, b *entity.Record) float64 {
	left, right := entity.NormalizeText(a.Industry), entity.NormalizeText(b.Industry)
	if left == "" || right == "" {
		return 0
	}
	if left == right {
		return 1
	}
	return math.Max(textsim.TokenJaccard(left, right), textsim.TrigramJaccard(left, right))
}

// domainSignal is binary: exact match on the registrable domain scores 1.0,
// anything else 0.
func domainSignal(a, b *entity.Record) float64 {
	left := textsim.RegistrableDomain(a.Website)
	right := textsim.RegistrableDomain(b.Website)
	if left != "" && left == right {
		return 1
	}
	return 0
}

// contactOverlap is the fraction of contact fields present on both sides
// that agree.
func contactOverlap(a, b *entity.Record) float64 {
	comparable := 0
	matches := 0

	emailA, emailB := normalizeEmail(a.ContactEmail), normalizeEmail(b.ContactEmail)
	if emailA != "" && emailB != "" {
		comparable++
		if emailA == emailB {
			matches++
		}
	}

	phoneA, phoneB := normalizePhone(a.ContactPhone), normalizePhone(b.ContactPhone)
	if phoneA != "" && phoneB != "" {
		comparable++
		if phoneA == phoneB {
			matches++
		}
	}

	if comparable == 0 {
		return 0
	}
	return float64(matches) / float64(comparable)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	// Collapse the national prefix so 082... and +2782... compare equal.
	if strings.HasPrefix(digits, "27") && len(digits) == 11 {
		digits = "0" + digits[2:]
	}
	return digits
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
