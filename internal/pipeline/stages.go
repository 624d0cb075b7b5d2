package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tippanel/internal/artifacts"
	"tippanel/internal/infrastructure"
	"tippanel/internal/modeling"
	"tippanel/internal/panel"
	"tippanel/internal/sources"
	"tippanel/internal/validation"
)

// Stage identifiers.
const (
	StageFetch    = "fetch"
	StageClean    = "clean"
	StageAssemble = "assemble"
	StageDerive   = "derive"
	StageLag      = "lag"
	StageCrim     = "crim"
	StageStats    = "stats"
	StageMetrics  = "metrics"
)

// DefaultStages returns the full build in run order.
func DefaultStages() []Stage {
	return []Stage{
		FetchStage{},
		CleanStage{},
		AssembleStage{},
		DeriveStage{},
		LagStage{},
		CrimStage{},
		StatsStage{},
		MetricsStage{},
	}
}

// FetchStage caches the remote sources under the raw directory. With
// fetching skipped the cleaners read whatever is already cached there.
type FetchStage struct{}

func (FetchStage) ID() string   { return StageFetch }
func (FetchStage) Name() string { return "Remote source fetch" }

func (FetchStage) Run(ctx context.Context, state *State) error {
	if state.Config.Fetch.Skip {
		state.Log.InfoContext(ctx, "fetch skipped",
			slog.String("raw_dir", state.Config.RawDir()))
		return nil
	}
	return sources.FetchAll(ctx, sources.FetchSpec{
		TreatyURL: state.Config.Fetch.TreatyURL,
		AidURL:    state.Config.Fetch.AidURL,
		WBBaseURL: state.Config.Fetch.WBBaseURL,
		WBPerSec:  state.Config.Fetch.WBPerSec,
		RawDir:    state.Config.RawDir(),
		YearMin:   state.Config.Panel.YearMin,
		YearMax:   state.Config.Panel.YearMax,
		Log:       state.Log,
	})
}

// CleanStage runs every source cleaner plus the treaty parse. Cleaners are
// independent and run in parallel; results land in the fixed join order so
// the assembled panel does not depend on scheduling.
type CleanStage struct{}

func (CleanStage) ID() string   { return StageClean }
func (CleanStage) Name() string { return "Source cleaning" }

func (CleanStage) Run(ctx context.Context, state *State) error {
	env := state.CleanEnv()
	if err := validation.NewFileValidator(state.Log).ValidateRawDir(env.RawDir, sources.RawFiles()); err != nil {
		return err
	}

	cleaners := sources.Cleaners()
	results := make([]sources.Table, len(cleaners))

	var g errgroup.Group
	for i, c := range cleaners {
		i, c := i, c
		g.Go(func() error {
			tb, err := c.Fn(env)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			results[i] = tb
			return nil
		})
	}

	var actions []sources.TreatyAction
	var treatyStats sources.Stats
	g.Go(func() error {
		var err error
		actions, treatyStats, err = sources.ParseTreaty(env)
		if err != nil {
			return fmt.Errorf("untc: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	state.Tables = state.Tables[:0]
	for _, tb := range results {
		if state.Metrics != nil {
			state.Metrics.RecordSource(ctx, tb.Name, tb.Stats.Rows, tb.Stats.Dropped, tb.Stats.Unmapped)
		}
		if tb.Name == "criminalization" {
			state.CrimTable = tb
			continue
		}
		state.Tables = append(state.Tables, tb)
	}

	state.Actions = actions
	if state.Metrics != nil {
		state.Metrics.RecordSource(ctx, "untc", treatyStats.Rows, treatyStats.Dropped, treatyStats.Unmapped)
	}

	state.Log.InfoContext(ctx, "sources cleaned",
		slog.Int("tables", len(state.Tables)),
		slog.Int("treaty_actions", len(state.Actions)))
	return nil
}

// AssembleStage builds the scaffold from the primary source, joins every
// clean table onto it in order, and binarizes the treaty events.
type AssembleStage struct{}

func (AssembleStage) ID() string   { return StageAssemble }
func (AssembleStage) Name() string { return "Panel assembly" }

func (AssembleStage) Run(ctx context.Context, state *State) error {
	if len(state.Tables) == 0 {
		return fmt.Errorf("no clean tables: clean stage has not run")
	}

	scaffold, err := panel.Scaffold(state.Tables[0], state.Config.Panel.YearMin, state.Config.Panel.YearMax)
	if err != nil {
		return err
	}

	df, err := panel.Assemble(scaffold, state.Tables, state.Log)
	if err != nil {
		return err
	}

	df, err = panel.BinarizeTreaty(df, state.Actions, state.Resolver)
	if err != nil {
		return err
	}

	state.Base = df
	state.Log.InfoContext(ctx, "panel assembled",
		slog.Int("rows", df.Nrow()),
		slog.Int("cols", df.Ncol()))
	return nil
}

// DeriveStage computes the derived economic variables and writes the first
// artifact.
type DeriveStage struct{}

func (DeriveStage) ID() string   { return StageDerive }
func (DeriveStage) Name() string { return "Derived variables" }

func (DeriveStage) Run(ctx context.Context, state *State) error {
	df, err := panel.Derive(state.Base)
	if err != nil {
		return err
	}
	state.Base = df

	if err := state.Writer.WritePanel(artifacts.FilePanelBase, df); err != nil {
		return err
	}
	if state.Metrics != nil {
		state.Metrics.RecordPanel(ctx, artifacts.FilePanelBase, df.Nrow())
	}
	return nil
}

// LagStage adds the lag-1/lag-2 features and writes the second artifact.
type LagStage struct{}

func (LagStage) ID() string   { return StageLag }
func (LagStage) Name() string { return "Lagged features" }

func (LagStage) Run(ctx context.Context, state *State) error {
	df, err := panel.Lag(state.Base, panel.LagVars())
	if err != nil {
		return err
	}
	state.Lagged = df

	if err := state.Writer.WritePanel(artifacts.FilePanelLagged, df); err != nil {
		return err
	}
	if state.Metrics != nil {
		state.Metrics.RecordPanel(ctx, artifacts.FilePanelLagged, df.Nrow())
	}
	return nil
}

// CrimStage merges the criminalization table, forward-fills it, lags it,
// and writes the third artifact.
type CrimStage struct{}

func (CrimStage) ID() string   { return StageCrim }
func (CrimStage) Name() string { return "Criminalization merge" }

func (CrimStage) Run(ctx context.Context, state *State) error {
	if state.CrimTable.Name == "" {
		return fmt.Errorf("criminalization table missing: clean stage has not run")
	}

	df, err := panel.MergeCriminalization(state.Lagged, state.CrimTable, state.Log)
	if err != nil {
		return err
	}
	state.Final = df

	if err := state.Writer.WritePanel(artifacts.FilePanelCrim, df); err != nil {
		return err
	}
	if state.Metrics != nil {
		state.Metrics.RecordPanel(ctx, artifacts.FilePanelCrim, df.Nrow())
	}
	return nil
}

// StatsStage writes the descriptive statistics and the pooled OLS table.
type StatsStage struct{}

func (StatsStage) ID() string   { return StageStats }
func (StatsStage) Name() string { return "Descriptives and OLS" }

func (StatsStage) Run(ctx context.Context, state *State) error {
	state.Descriptives = modeling.Describe(state.Final, sources.ColCcode, sources.ColYear)
	if err := state.Writer.WriteDescriptives(artifacts.FileDescriptives, state.Descriptives); err != nil {
		return err
	}

	res, err := modeling.FitOLS(state.Final, modeling.OLSSpec{
		Y:       "p3",
		X:       modeling.PredictorTerms(),
		Cluster: sources.ColCcode,
	})
	if err != nil {
		return err
	}
	state.OLS = res

	if err := state.Writer.WriteOLS(artifacts.FileOLS, res); err != nil {
		return err
	}

	state.Log.InfoContext(ctx, "models fit",
		slog.Int("variables", len(state.Descriptives)),
		slog.Int("ols_n", res.N),
		slog.Int("ols_clusters", res.Clusters))
	return nil
}

// MetricsStage renders the run metrics into the textfile artifact. It runs
// last; its own duration sample is recorded after the file is written and
// so does not appear in it.
type MetricsStage struct{}

func (MetricsStage) ID() string   { return StageMetrics }
func (MetricsStage) Name() string { return "Run metrics" }

func (MetricsStage) Run(ctx context.Context, state *State) error {
	if state.Registry == nil {
		return fmt.Errorf("no metrics registry")
	}
	path := state.Writer.Path(artifacts.FileMetrics)
	if err := infrastructure.WriteMetricsFile(path, state.Registry); err != nil {
		return err
	}
	state.Log.InfoContext(ctx, "wrote artifact", slog.String("file", artifacts.FileMetrics))
	return nil
}
