// Command tipfetch runs the fetch stage alone: it caches the remote sources
// (treaty status page, CRS extract, World Bank indicators) under the raw
// directory without building the panel. Useful for priming a machine that
// will later run tippanel -skip-fetch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"tippanel/internal/config"
	"tippanel/internal/infrastructure"
	"tippanel/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	dataDir := flag.String("data", "", "data directory; fetched files cache under <data>/raw")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	// Fetching is the whole point here.
	cfg.Fetch.Skip = false

	logger := infrastructure.InitializeLogger(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = infrastructure.EnsureRunID(ctx)

	state := &pipeline.State{Config: cfg, Log: logger}
	runner := pipeline.NewRunner(logger, nil, nil)
	if err := runner.Register(pipeline.FetchStage{}); err != nil {
		logger.ErrorContext(ctx, "stage registration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := runner.Run(ctx, state); err != nil {
		logger.ErrorContext(ctx, "fetch failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
