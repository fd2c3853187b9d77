// Package match runs the staged comparison of one incoming record against
// its blocking-bucket candidates: exact hash, then MinHash near-duplicate,
// then weighted fuzzy scoring, short-circuiting on the first decisive stage.
package match

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/fingerprint"
	"horse.fit/jobsift/internal/scoring"
)

// Type labels how a pairwise edge was established.
type Type string

const (
	TypeExact     Type = "exact"
	TypeNear      Type = "near"
	TypeFuzzy     Type = "fuzzy"
	TypeReposting Type = "reposting"
)

// Edge is an undirected pairwise match. A < B always holds so the same pair
// is never stored in both directions.
type Edge struct {
	A     int64
	B     int64
	Type  Type
	Score float64
}

// NewEdge builds an edge in canonical (lower id first) order.
func NewEdge(a, b int64, t Type, score float64) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{A: a, B: b, Type: t, Score: score}
}

// PairKey identifies an edge regardless of direction.
func (e Edge) PairKey() string {
	return fmt.Sprintf("%d:%d", e.A, e.B)
}

// Possible is a pair in the review band: not merged, queued for external
// review.
type Possible struct {
	A     int64
	B     int64
	Score float64
}

// Candidate is one blocking-bucket entry the incoming record is compared
// against. ClusterID is zero when the candidate is not yet clustered.
type Candidate struct {
	Record      *entity.Record
	Fingerprint fingerprint.Fingerprint
	ClusterID   int64
}

// Outcome is the full batch of evidence produced for one incoming record.
// Nothing in it is applied to shared state by this package.
type Outcome struct {
	Edges     []Edge
	Possibles []Possible
	Warnings  []string
}

// Options carries the configured policy knobs.
type Options struct {
	Thresholds             scoring.Thresholds
	RepostingWindow        time.Duration
	RepostingMergeEnabled  bool
	LargeEmployerThreshold int
}

type Pipeline struct {
	scorer *scoring.Scorer
	opts   Options
	logger zerolog.Logger
}

func NewPipeline(scorer *scoring.Scorer, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.RepostingWindow <= 0 {
		opts.RepostingWindow = 30 * 24 * time.Hour
	}
	return &Pipeline{
		scorer: scorer,
		opts:   opts,
		logger: logger,
	}
}

// Run scores the record against every candidate and returns the edge batch.
// A malformed candidate is skipped with a warning; cancellation returns the
// context error with no partial outcome.
func (p *Pipeline) Run(ctx context.Context, rec *entity.Record, fp fingerprint.Fingerprint, candidates []Candidate) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid pipeline input: %w", err)
	}

	var out Outcome
	remaining := make([]Candidate, 0, len(candidates))

	// Exact stage.
	exactClusters := make(map[int64]struct{})
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if err := cand.Record.Validate(); err != nil {
			p.warnSkip(&out, rec.ID, err)
			continue
		}
		if cand.Record.ID == rec.ID || cand.Record.Kind != rec.Kind {
			continue
		}
		if fp.ExactEqual(cand.Fingerprint) {
			out.Edges = append(out.Edges, NewEdge(rec.ID, cand.Record.ID, TypeExact, 1.0))
			cluster := cand.ClusterID
			if cluster == 0 {
				cluster = cand.Record.ID
			}
			exactClusters[cluster] = struct{}{}
			continue
		}
		remaining = append(remaining, cand)
	}

	if len(exactClusters) == 1 {
		return out, nil
	}
	if len(exactClusters) > 1 {
		warning := fmt.Sprintf("record %d exact-matches %d distinct clusters", rec.ID, len(exactClusters))
		out.Warnings = append(out.Warnings, warning)
		p.logger.Warn().
			Int64("record_id", rec.ID).
			Int("exact_clusters", len(exactClusters)).
			Msg("exact duplicates span multiple clusters; continuing to near/fuzzy stages")
	}

	// Near stage.
	nearDecisive := false
	fuzzyCandidates := make([]Candidate, 0, len(remaining))
	for _, cand := range remaining {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		estimate := fingerprint.EstimateJaccard(fp.Sketch, cand.Fingerprint.Sketch)
		if estimate < p.opts.Thresholds.Near {
			fuzzyCandidates = append(fuzzyCandidates, cand)
			continue
		}
		if p.isReposting(rec, cand.Record) {
			out.Edges = append(out.Edges, NewEdge(rec.ID, cand.Record.ID, TypeReposting, estimate))
			continue
		}
		out.Edges = append(out.Edges, NewEdge(rec.ID, cand.Record.ID, TypeNear, estimate))
		nearDecisive = true
	}
	if nearDecisive {
		return out, nil
	}

	// Fuzzy stage.
	for _, cand := range fuzzyCandidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		score, err := p.scorer.Score(rec, cand.Record)
		if err != nil {
			p.warnSkip(&out, rec.ID, err)
			continue
		}

		switch p.opts.Thresholds.Classify(score) {
		case scoring.ClassAccepted:
			if p.largeEmployerGuardBlocks(rec, cand.Record) {
				// Same large employer, threshold met, but no location
				// agreement: hold for review instead of merging.
				out.Possibles = append(out.Possibles, Possible{A: minID(rec.ID, cand.Record.ID), B: maxID(rec.ID, cand.Record.ID), Score: score})
				out.Warnings = append(out.Warnings, fmt.Sprintf(
					"records %d/%d held by large-employer guard", rec.ID, cand.Record.ID))
				continue
			}
			if p.isReposting(rec, cand.Record) {
				out.Edges = append(out.Edges, NewEdge(rec.ID, cand.Record.ID, TypeReposting, score))
				continue
			}
			out.Edges = append(out.Edges, NewEdge(rec.ID, cand.Record.ID, TypeFuzzy, score))
		case scoring.ClassPossible:
			out.Possibles = append(out.Possibles, Possible{A: minID(rec.ID, cand.Record.ID), B: maxID(rec.ID, cand.Record.ID), Score: score})
		}
	}

	return out, nil
}

// Merges reports whether an edge of the given type joins clusters under the
// configured reposting policy.
func (p *Pipeline) Merges(t Type) bool {
	if t == TypeReposting {
		return p.opts.RepostingMergeEnabled
	}
	return true
}

// isReposting reports whether the pair is separated by more than the
// reposting window. Exact-hash matches never reach this check; identical key
// fields are the same posting regardless of age.
func (p *Pipeline) isReposting(a, b *entity.Record) bool {
	if a.Kind != entity.KindJob {
		return false
	}
	gap := math.Abs(a.PostedAt.UTC().Sub(b.PostedAt.UTC()).Hours())
	return gap > p.opts.RepostingWindow.Hours()
}

// largeEmployerGuardBlocks applies the same-employer false-positive guard:
// above the employee threshold an accepted fuzzy score additionally needs a
// city-level location match.
func (p *Pipeline) largeEmployerGuardBlocks(a, b *entity.Record) bool {
	if a.Kind != entity.KindJob || p.opts.LargeEmployerThreshold <= 0 {
		return false
	}
	if !sameEmployer(a, b) {
		return false
	}
	employees := a.EmployeeCount
	if b.EmployeeCount > employees {
		employees = b.EmployeeCount
	}
	if employees <= p.opts.LargeEmployerThreshold {
		return false
	}
	return scoring.LocationSignal(a, b) < 1
}

func sameEmployer(a, b *entity.Record) bool {
	if a.OrgID != nil && b.OrgID != nil {
		return *a.OrgID == *b.OrgID
	}
	left := entity.NormalizeOrgName(a.OrgName)
	return left != "" && left == entity.NormalizeOrgName(b.OrgName)
}

func (p *Pipeline) warnSkip(out *Outcome, recordID int64, err error) {
	out.Warnings = append(out.Warnings, err.Error())
	p.logger.Warn().
		Err(err).
		Int64("record_id", recordID).
		Msg("skipping malformed candidate")
}

func minID(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxID(a, b int64) int64 {
	if a < b {
		return b
	}
	return a
}
