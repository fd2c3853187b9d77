package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/jobsift/internal/cli"
	"horse.fit/jobsift/internal/config"
	"horse.fit/jobsift/internal/db"
	"horse.fit/jobsift/internal/logging"
)

func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a single record payload .json file")
	dir := fs.String("dir", "", "Directory of record payload .json files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories when --dir is set")
	timeout := fs.Duration("timeout", 30*time.Second, "Submission timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cleanFile := strings.TrimSpace(*file)
	cleanDir := strings.TrimSpace(*dir)
	if (cleanFile == "") == (cleanDir == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --file or --dir is required")
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
		logger.Error().Err(err).Msg("submit failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newResolver(cfg, pool, logger)

	files := []string{cleanFile}
	if cleanDir != "" {
		files, err = collectJSONFiles(cleanDir, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Submission setup failed: %v\n", err)
			return 1
		}
		if len(files) == 0 {
			fmt.Fprintf(os.Stderr, "Submission failed: no .json files found under %s\n", cleanDir)
			return 1
		}
	}

	submitted := 0
	rejected := 0
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			rejected++
			fmt.Fprintf(os.Stderr, "REJECTED %s: read failed: %v\n", path, err)
			continue
		}

		recordID, err := svc.SubmitRecord(ctx, json.RawMessage(raw))
		if err != nil {
			rejected++
			fmt.Fprintf(os.Stderr, "REJECTED %s: %v\n", path, err)
			continue
		}

		submitted++
		fmt.Printf("submitted %s record_id=%d\n", path, recordID)
	}

	logger.Info().
		Int("submitted", submitted).
		Int("rejected", rejected).
		Msg("submission batch finished")
	fmt.Printf("submit submitted=%d rejected=%d\n", submitted, rejected)

	if rejected > 0 {
		return 1
	}
	return 0
}
