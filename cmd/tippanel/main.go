// Command tippanel builds the anti-trafficking policy panel: it fetches and
// cleans the upstream sources, assembles the country-year panel, derives and
// lags the analysis variables, and writes the panel, descriptives, OLS and
// metrics artifacts to the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"tippanel/internal/artifacts"
	"tippanel/internal/config"
	"tippanel/internal/countries"
	"tippanel/internal/infrastructure"
	"tippanel/internal/pipeline"
	"tippanel/internal/validation"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	dataDir := flag.String("data", "", "data directory; raw source files live under <data>/raw")
	outDir := flag.String("out", "", "artifact output directory")
	skipFetch := flag.Bool("skip-fetch", false, "skip remote fetching and use cached raw files")
	traces := flag.String("trace-exporter", "", "trace exporter: stdout | none")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *outDir != "" {
		cfg.Data.OutDir = *outDir
	}
	if *skipFetch {
		cfg.Fetch.Skip = true
	}

	logger := infrastructure.InitializeLogger(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = infrastructure.EnsureRunID(ctx)

	otelCfg := infrastructure.DefaultOTelConfig()
	if *traces != "" {
		otelCfg.TraceExporter = *traces
	}
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "observability init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer providers.Shutdown(context.Background())

	metrics, err := infrastructure.CreatePanelMetrics(providers.Meter)
	if err != nil {
		logger.ErrorContext(ctx, "metrics init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolver, err := countries.Load()
	if err != nil {
		logger.ErrorContext(ctx, "country tables failed to load", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := validation.NewFileValidator(logger).ValidateOutputDirectory(cfg.Data.OutDir); err != nil {
		logger.ErrorContext(ctx, "output directory unusable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	state := &pipeline.State{
		Config:   cfg,
		Resolver: resolver,
		Log:      logger,
		Writer:   artifacts.NewWriter(cfg.Data.OutDir, logger),
		Metrics:  metrics,
		Registry: providers.Registry,
	}

	runner := pipeline.NewRunner(logger, providers, metrics)
	for _, stage := range pipeline.DefaultStages() {
		if err := runner.Register(stage); err != nil {
			logger.ErrorContext(ctx, "stage registration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := runner.Run(ctx, state); err != nil {
		logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
