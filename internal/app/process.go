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

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 100, "Maximum number of pending records to resolve")
	timeout := fs.Duration("timeout", 10*time.Minute, "Processing timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
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
		logger.Error().Err(err).Msg("process failed to connect to database")
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

	resolved, err := svc.ProcessPending(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Int("resolved", resolved).Msg("processing failed")
		fmt.Fprintf(os.Stderr, "Processing failed after %d records: %v\n", resolved, err)
		return 1
	}

	logger.Info().Int("resolved", resolved).Msg("processing run finished")
	fmt.Printf("process resolved=%d\n", resolved)
	return 0
}
