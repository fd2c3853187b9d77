package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/jobsift/internal/cli"
	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/db"
	"horse.fit/jobsift/internal/logging"
)

func runInvalidate(args []string) int {
	fs := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	recordA := fs.Int64("record-a", 0, "First record id of the edge")
	recordB := fs.Int64("record-b", 0, "Second record id of the edge")
	timeout := fs.Duration("timeout", 2*time.Minute, "Invalidation timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *recordA < 1 || *recordB < 1 {
		fmt.Fprintln(os.Stderr, "--record-a and --record-b must both be positive record ids")
		return 2
	}
	if *recordA == *recordB {
		fmt.Fprintln(os.Stderr, "--record-a and --record-b must differ")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("invalidate failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newResolver(cfg, pool, logger)

	if err := svc.Rehydrate(ctx); err != nil {
		logger.Error().Err(err).Msg("rehydration failed")
		fmt.Fprintf(os.Stderr, "Rehydration failed: %v\n", err)
		return 1
	}

	assignments, err := svc.InvalidateEdge(ctx, *recordA, *recordB)
	if err != nil {
		logger.Error().
			Err(err).
			Int64("record_a", *recordA).
			Int64("record_b", *recordB).
			Msg("edge invalidation failed")
		fmt.Fprintf(os.Stderr, "Invalidation failed: %v\n", err)
		return 1
	}

	for _, assignment := range assignments {
		fmt.Printf("record %d -> cluster %d\n", assignment.RecordID, assignment.ClusterID)
	}
	fmt.Printf("invalidate edge=%d-%d reassigned=%d\n", *recordA, *recordB, len(assignments))
	return 0
}
