package app

import (
	"time"

	"github.com/rs/zerolog"

	"horse.fit/jobsift/internal/blocking"
	"horse.fit/jobsift/internal/canonical"
	"horse.fit/jobsift/internal/clustergraph"
	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/db"
	"horse.fit/jobsift/internal/dedup"
	"horse.fit/jobsift/internal/fingerprint"
	"horse.fit/jobsift/internal/ingest"
	"horse.fit/jobsift/internal/match"
	"horse.fit/jobsift/internal/scoring"
)

// newResolver assembles the full resolution stack from configuration. The
// returned service starts empty; callers that need prior decisions replayed
// must call Rehydrate before processing.
func newResolver(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) *ingest.Service {
	generator := fingerprint.NewGenerator(cfg.ShingleSize, cfg.SignatureSize)
	index := blocking.NewIndex(cfg.RepostingWindowDays)
	scorer := scoring.NewScorer(cfg.JobWeights, cfg.OrgWeights)

	pipeline := match.NewPipeline(scorer, match.Options{
		Thresholds: scoring.Thresholds{
			Near:        cfg.NearThreshold,
			FuzzyAccept: cfg.FuzzyAcceptThreshold,
			Possible:    cfg.PossibleThreshold,
		},
		RepostingWindow:        time.Duration(cfg.RepostingWindowDays) * 24 * time.Hour,
		RepostingMergeEnabled:  cfg.RepostingMergeEnabled,
		LargeEmployerThreshold: cfg.LargeEmployerThreshold,
	}, logger)

	engine := clustergraph.NewEngine(cfg.RepostingMergeEnabled)
	selector := canonical.NewSelector(cfg.SourceAuthorityList())

	coord := dedup.NewCoordinator(generator, index, pipeline, engine, selector, logger)
	return ingest.NewService(pool, coord, logger)
}
