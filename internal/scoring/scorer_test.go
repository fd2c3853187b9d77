package scoring

import (
	"math"
	"testing"
	"time"

	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/textsim"
)

func defaultScorer() *Scorer {
	return NewScorer(
		config.JobWeights{Title: 0.30, Organization: 0.25, Location: 0.15, Description: 0.20, Temporal: 0.10},
		config.OrgWeights{Name: 0.40, Location: 0.20, Industry: 0.15, Website: 0.15, Contact: 0.10},
	)
}

func defaultThresholds() Thresholds {
	return Thresholds{Near: 0.85, FuzzyAccept: 0.75, Possible: 0.60}
}

func jobRec(id int64, title, org, city, province string, postedAt time.Time) *entity.Record {
	return &entity.Record{
		ID:           id,
		Kind:         entity.KindJob,
		Source:       "aggregator",
		Title:        title,
		OrgName:      org,
		City:         city,
		Province:     province,
		PostedAt:     postedAt,
		QualityScore: 50,
	}
}

func TestScore_Symmetric(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobRec(1, "Senior Developer", "Google", "Cape Town", "Western Cape", base)
	a.Description = "Build and run distributed systems for search infrastructure."
	b := jobRec(2, "Snr Developer", "Google (Pty) Ltd", "Cape Town", "Western Cape", base.Add(48*time.Hour))
	b.Description = "Build and operate distributed systems for search infrastructure."

	ab, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score a,b: %v", err)
	}
	ba, err := s.Score(b, a)
	if err != nil {
		t.Fatalf("score b,a: %v", err)
	}
	if math.Abs(ab-ba) > 1e-12 {
		t.Fatalf("score not symmetric: %f vs %f", ab, ba)
	}
	if ab <= 0 || ab > 1 {
		t.Fatalf("score out of range: %f", ab)
	}
}

func TestScore_KindMismatch(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	job := jobRec(1, "Senior Developer", "Google", "", "", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	org := &entity.Record{ID: 2, Kind: entity.KindOrganization, OrgName: "Google", PostedAt: job.PostedAt}
	if _, err := s.Score(job, org); err == nil {
		t.Fatalf("expected kind mismatch error")
	}
}

// Same title and employer, suffix differences, same city, two days apart:
// must clear the fuzzy accept threshold.
func TestScore_SuffixVariantsAccept(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobRec(1, "Senior Developer", "Google", "Cape Town", "Western Cape", base)
	b := jobRec(2, "Senior Developer", "Google (Pty) Ltd", "Cape Town", "Western Cape", base.Add(48*time.Hour))

	score, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score < 0.75 {
		t.Fatalf("suffix variants scored %f, want >= 0.75", score)
	}
	if got := defaultThresholds().Classify(score); got != ClassAccepted {
		t.Fatalf("expected accepted classification, got %s", got)
	}
}

// Same title and employer but a different city and a stale posting: the
// location signal is 0 and the pair must be rejected outright.
func TestScore_DifferentCityRejected(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobRec(1, "Senior Developer", "Google", "Cape Town", "Western Cape", base)
	b := jobRec(2, "Senior Developer", "Google", "Johannesburg", "Gauteng", base.Add(45*24*time.Hour))

	score, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score >= 0.60 {
		t.Fatalf("different-city pair scored %f, want < 0.60", score)
	}
	if got := defaultThresholds().Classify(score); got != ClassRejected {
		t.Fatalf("expected rejected classification, got %s", got)
	}
}

func TestClassify_Bands(t *testing.T) {
	t.Parallel()

	th := defaultThresholds()
	if th.Classify(0.80) != ClassAccepted {
		t.Fatalf("0.80 must be accepted")
	}
	if th.Classify(0.75) != ClassAccepted {
		t.Fatalf("0.75 boundary must be accepted")
	}
	if th.Classify(0.70) != ClassPossible {
		t.Fatalf("0.70 must be possible")
	}
	if th.Classify(0.60) != ClassPossible {
		t.Fatalf("0.60 boundary must be possible")
	}
	if th.Classify(0.59) != ClassRejected {
		t.Fatalf("0.59 must be rejected")
	}
}

func TestDescriptionSignal_LanguageGate(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := jobRec(1, "Senior Developer", "Google", "Cape Town", "Western Cape", base)
	a.Description = "ontwikkelaar gesoek vir stelsels werk"
	a.Language = "af"
	b := jobRec(2, "Senior Developer", "Google", "Cape Town", "Western Cape", base)
	b.Description = "ontwikkelaar gesoek vir stelsels werk"
	b.Language = "en"

	mixed, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	b.Language = "af"
	same, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if same <= mixed {
		t.Fatalf("language mismatch must suppress description signal: same=%f mixed=%f", same, mixed)
	}
}

func TestScore_Organizations(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &entity.Record{
		ID: 1, Kind: entity.KindOrganization, Source: "company-site",
		OrgName: "Takealot (Pty) Ltd", City: "Cape Town", Province: "Western Cape",
		Industry: "Retail", Website: "https://www.takealot.co.za",
		ContactEmail: "jobs@takealot.co.za", PostedAt: base,
	}
	b := &entity.Record{
		ID: 2, Kind: entity.KindOrganization, Source: "aggregator",
		OrgName: "Takealot", City: "Cape Town", Province: "Western Cape",
		Industry: "Retail", Website: "takealot.co.za/careers",
		ContactEmail: "JOBS@takealot.co.za", PostedAt: base.Add(24 * time.Hour),
	}

	score, err := s.Score(a, b)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score < 0.95 {
		t.Fatalf("same organization variants scored %f, want >= 0.95", score)
	}

	c := &entity.Record{
		ID: 3, Kind: entity.KindOrganization, Source: "aggregator",
		OrgName: "Taxify", City: "Johannesburg", Province: "Gauteng",
		Industry: "Transport", Website: "https://taxify.example",
		PostedAt: base,
	}
	low, err := s.Score(a, c)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if low >= 0.60 {
		t.Fatalf("unrelated organizations scored %f, want < 0.60", low)
	}
}

func TestIndustrySignal_MorphologicalVariants(t *testing.T) {
	t.Parallel()

	a := &entity.Record{Industry: "Retail"}
	b := &entity.Record{Industry: "Retailing"}

	// The whole-token sets are disjoint, so only trigram overlap can see
	// that these are the same industry.
	if got := textsim.TokenJaccard("retail", "retailing"); got != 0 {
		t.Fatalf("token jaccard = %f, want 0", got)
	}
	if got := industrySignal(a, b); got <= 0.5 {
		t.Fatalf("industry signal = %f, want > 0.5 for %q vs %q", got, a.Industry, b.Industry)
	}

	c := &entity.Record{Industry: "Mining"}
	if got := industrySignal(a, c); got != 0 {
		t.Fatalf("unrelated industries scored %f, want 0", got)
	}
}

func TestContactOverlap_PhoneNormalization(t *testing.T) {
	t.Parallel()

	a := &entity.Record{ContactPhone: "+27 82 555 0100"}
	b := &entity.Record{ContactPhone: "082 555 0100"}
	if got := contactOverlap(a, b); got != 1 {
		t.Fatalf("national/International phone variants must match, got %f", got)
	}

	c := &entity.Record{ContactPhone: "082 555 0199"}
	if got := contactOverlap(a, c); got != 0 {
		t.Fatalf("different phones must not match, got %f", got)
	}
}
