// Package pipeline runs the panel build as an ordered sequence of stages:
// fetch, clean, assemble, derive, lag, crim, stats, metrics. Stages share a
// State; the runner owns ordering, logging, spans and the per-stage metrics.
// Any stage error aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gota/gota/dataframe"
	promclient "github.com/prometheus/client_golang/prometheus"

	"tippanel/internal/artifacts"
	"tippanel/internal/config"
	"tippanel/internal/countries"
	"tippanel/internal/infrastructure"
	"tippanel/internal/modeling"
	"tippanel/internal/sources"
)

// Stage is one unit of the build.
type Stage interface {
	// ID returns the stage identifier used in logs and metrics.
	ID() string

	// Name returns the human-readable stage name.
	Name() string

	// Run executes the stage against the shared state.
	Run(ctx context.Context, state *State) error
}

// State is the shared build state stages read and extend. Each stage fills
// the fields later stages depend on; a missing precondition is a wiring bug
// and surfaces as a stage error.
type State struct {
	Config   *config.Config
	Resolver *countries.Resolver
	Log      *slog.Logger

	// Clean outputs. Tables holds the country-year sources in join order;
	// the criminalization table is kept aside for its own merge stage.
	Tables    []sources.Table
	CrimTable sources.Table
	Actions   []sources.TreatyAction

	// Panel frames, in build order.
	Base   dataframe.DataFrame // assembled scaffold + joins + treaty + derived
	Lagged dataframe.DataFrame // Base + lag-1/lag-2 features
	Final  dataframe.DataFrame // Lagged + criminalization block

	// Modeling outputs.
	Descriptives []modeling.VarStat
	OLS          modeling.OLSResult

	Writer   *artifacts.Writer
	Metrics  *infrastructure.PanelMetrics
	Registry *promclient.Registry
}

// CleanEnv builds the environment the source cleaners run under.
func (s *State) CleanEnv() sources.Env {
	return sources.Env{
		RawDir:  s.Config.RawDir(),
		Res:     s.Resolver,
		YearMin: s.Config.Panel.YearMin,
		YearMax: s.Config.Panel.YearMax,
		Log:     s.Log,
	}
}

// Runner executes registered stages in order.
type Runner struct {
	stages    []Stage
	ids       map[string]bool
	log       *slog.Logger
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.PanelMetrics
}

// NewRunner creates a runner. Providers and metrics may be nil; spans and
// stage timings are then skipped, which the fetch-only command uses.
func NewRunner(log *slog.Logger, providers *infrastructure.OTelProviders, metrics *infrastructure.PanelMetrics) *Runner {
	return &Runner{
		ids:       make(map[string]bool),
		log:       log,
		providers: providers,
		metrics:   metrics,
	}
}

// Register appends a stage to the run order.
func (r *Runner) Register(s Stage) error {
	if s == nil {
		return fmt.Errorf("pipeline: cannot register nil stage")
	}
	id := s.ID()
	if id == "" {
		return fmt.Errorf("pipeline: stage ID cannot be empty")
	}
	if r.ids[id] {
		return fmt.Errorf("pipeline: stage %s already registered", id)
	}
	r.ids[id] = true
	r.stages = append(r.stages, s)
	return nil
}

// Stages returns the registered stages in run order.
func (r *Runner) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Run executes the stages in registration order, stopping at the first
// failure.
func (r *Runner) Run(ctx context.Context, state *State) error {
	start := time.Now()
	r.log.InfoContext(ctx, "run started", slog.Int("stages", len(r.stages)))

	for _, s := range r.stages {
		if err := r.runStage(ctx, state, s); err != nil {
			return fmt.Errorf("stage %s: %w", s.ID(), err)
		}
	}

	r.log.InfoContext(ctx, "run completed",
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) runStage(ctx context.Context, state *State, s Stage) error {
	stageCtx := ctx
	if r.providers != nil {
		var end func()
		stageCtx, end = r.startSpan(ctx, s.ID())
		defer end()
	}

	r.log.InfoContext(stageCtx, "stage started",
		slog.String("stage", s.ID()),
		slog.String("name", s.Name()))

	start := time.Now()
	err := s.Run(stageCtx, state)
	duration := time.Since(start)

	if r.metrics != nil {
		r.metrics.RecordStage(stageCtx, s.ID(), duration.Seconds(), err == nil)
	}

	if err != nil {
		infrastructure.RecordError(stageCtx, err)
		r.log.ErrorContext(stageCtx, "stage failed",
			slog.String("stage", s.ID()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return err
	}

	r.log.InfoContext(stageCtx, "stage completed",
		slog.String("stage", s.ID()),
		slog.Duration("duration", duration))
	return nil
}

func (r *Runner) startSpan(ctx context.Context, id string) (context.Context, func()) {
	spanCtx, span := r.providers.StartStage(ctx, id)
	return spanCtx, func() { span.End() }
}
