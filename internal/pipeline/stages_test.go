package pipeline

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippanel/internal/artifacts"
	"tippanel/internal/config"
	"tippanel/internal/countries"
	"tippanel/internal/infrastructure"
	"tippanel/internal/modeling"
)

// artifact loads a written CSV into header-keyed rows, panel rows keyed by
// "ccode:year".
type artifact struct {
	cols map[string]int
	rows map[string][]string
	n    int
}

func readArtifact(t *testing.T, dir, name string) artifact {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	a := artifact{cols: make(map[string]int), rows: make(map[string][]string), n: len(records) - 1}
	for i, h := range records[0] {
		a.cols[h] = i
	}
	for _, rec := range records[1:] {
		key := rec[0]
		if _, ok := a.cols["year"]; ok && len(rec) > 1 {
			key = rec[a.cols["ccode"]] + ":" + rec[a.cols["year"]]
		}
		a.rows[key] = rec
	}
	return a
}

func (a artifact) cell(t *testing.T, key, col string) string {
	t.Helper()
	row, ok := a.rows[key]
	require.True(t, ok, "row %s not in artifact", key)
	i, ok := a.cols[col]
	require.True(t, ok, "column %s not in artifact", col)
	return row[i]
}

func (a artifact) float(t *testing.T, key, col string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(a.cell(t, key, col), 64)
	require.NoError(t, err)
	return v
}

func key(ccode, year int) string {
	return strconv.Itoa(ccode) + ":" + strconv.Itoa(year)
}

func TestPipelineEndToEnd(t *testing.T) {
	outDir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Dir = "testdata"
	cfg.Data.OutDir = outDir
	cfg.Fetch.Skip = true

	res, err := countries.Load()
	require.NoError(t, err)

	log := quietLog()
	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), log)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())
	metrics, err := infrastructure.CreatePanelMetrics(providers.Meter)
	require.NoError(t, err)

	state := &State{
		Config:   cfg,
		Resolver: res,
		Log:      log,
		Writer:   artifacts.NewWriter(outDir, log),
		Metrics:  metrics,
		Registry: providers.Registry,
	}

	r := NewRunner(log, providers, metrics)
	for _, s := range DefaultStages() {
		require.NoError(t, r.Register(s))
	}
	require.NoError(t, r.Run(context.Background(), state))

	// Scaffold: 4 distinct primary codes (260, 340, 345, 501) over 16 years.
	require.Equal(t, 64, state.Base.Nrow())
	require.Equal(t, 64, state.Final.Nrow())

	for _, name := range []string{
		artifacts.FilePanelBase, artifacts.FilePanelLagged, artifacts.FilePanelCrim,
		artifacts.FileDescriptives, artifacts.FileOLS, artifacts.FileMetrics,
	} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	p := readArtifact(t, outDir, artifacts.FilePanelCrim)
	require.Equal(t, 64, p.n)
	require.Len(t, p.cols, 53)

	// Treaty step functions. The union's 2001 ratification carries to Serbia
	// only from the 2006 split; Kenya acceded without signing.
	assert.Equal(t, "1", p.cell(t, key(345, 2000), "tip_signed"))
	assert.Equal(t, "0", p.cell(t, key(345, 2000), "tip_ratified"))
	assert.Equal(t, "1", p.cell(t, key(345, 2001), "tip_ratified"))
	assert.Equal(t, "0", p.cell(t, key(340, 2005), "tip_ratified"))
	assert.Equal(t, "1", p.cell(t, key(340, 2006), "tip_ratified"))
	assert.Equal(t, "0", p.cell(t, key(340, 2005), "tip_signed"))
	assert.Equal(t, "1", p.cell(t, key(340, 2006), "tip_signed"))
	assert.Equal(t, "0", p.cell(t, key(260, 2005), "tip_ratified"))
	assert.Equal(t, "1", p.cell(t, key(260, 2006), "tip_ratified"))
	assert.Equal(t, "1", p.cell(t, key(501, 2005), "tip_ratified"))
	assert.Equal(t, "0", p.cell(t, key(501, 2010), "tip_signed"))

	// Policy index straight from the workbook.
	assert.Equal(t, "10", p.cell(t, key(260, 2000), "p3"))
	assert.Equal(t, "8", p.cell(t, key(340, 2007), "p3"))
	assert.Equal(t, "5", p.cell(t, key(345, 2003), "p3"))
	assert.Equal(t, "NA", p.cell(t, key(345, 2008), "p3"))

	// Aid rebased to 2015 prices; donors with no rows zero-fill.
	assert.Equal(t, "1150", p.cell(t, key(501, 2015), "aid"))
	assert.Equal(t, "0", p.cell(t, key(260, 2010), "aid"))
	assert.InDelta(t, 300, p.float(t, key(345, 2003), "aid"), 1e-6)
	assert.InDelta(t, 1030, p.float(t, key(501, 2003), "aid"), 1e-6)

	// Derived variables.
	assert.Equal(t, "0", p.cell(t, key(260, 2001), "aid_pct_gdp"))
	assert.Equal(t, "NA", p.cell(t, key(345, 2002), "aid_pct_gdp"))
	assert.InDelta(t, math.Log1p(36000), p.float(t, key(260, 2000), "log_gdp_pc"), 1e-12)
	gdp := 1200.0 + 15*3
	pop := 31000000.0 + 400000*3
	aid := p.float(t, key(501, 2003), "aid")
	assert.InDelta(t, 100*aid*1000/(gdp*pop), p.float(t, key(501, 2003), "aid_pct_gdp"), 1e-9)

	// Lags stay within a country and shift by exactly one and two years.
	assert.Equal(t, "NA", p.cell(t, key(260, 2000), "p3_l1"))
	assert.Equal(t, "10", p.cell(t, key(260, 2001), "p3_l1"))
	assert.Equal(t, "10", p.cell(t, key(260, 2002), "p3_l2"))
	assert.Equal(t, "-1", p.cell(t, key(501, 2001), "cc_est_l1"))
	assert.Equal(t, "46", p.cell(t, key(260, 2001), "flfp_l1"))
	assert.Equal(t, "NA", p.cell(t, key(340, 2006), "cc_est_l1"))

	// Criminalization with forward fill that respects country boundaries.
	assert.Equal(t, "1", p.cell(t, key(260, 2000), "crim_level"))
	assert.Equal(t, "1", p.cell(t, key(260, 2004), "crim_level"))
	assert.Equal(t, "2", p.cell(t, key(260, 2005), "crim_level"))
	assert.Equal(t, "2", p.cell(t, key(260, 2015), "crim_level"))
	assert.Equal(t, "full", p.cell(t, key(260, 2015), "crim_label"))
	assert.Equal(t, "NA", p.cell(t, key(340, 2006), "crim_level"))
	assert.Equal(t, "2", p.cell(t, key(340, 2009), "crim_level"))
	assert.Equal(t, "NA", p.cell(t, key(345, 2002), "crim_label"))
	assert.Equal(t, "1", p.cell(t, key(345, 2005), "crim_level"))
	assert.Equal(t, "partial", p.cell(t, key(345, 2005), "crim_label"))
	assert.Equal(t, "2", p.cell(t, key(501, 2011), "crim_level_l1"))

	// Descriptives: key and string columns excluded, zero-filled aid is
	// complete, p3 counts only observed rows.
	d := readArtifact(t, outDir, artifacts.FileDescriptives)
	assert.Equal(t, "45", d.cell(t, "p3", "n"))
	assert.Equal(t, "64", d.cell(t, "aid", "n"))
	assert.Equal(t, "64", d.cell(t, "tip_ratified", "n"))
	assert.NotContains(t, d.rows, "ccode")
	assert.NotContains(t, d.rows, "year")
	assert.NotContains(t, d.rows, "crim_label")

	// OLS: intercept plus the ten lagged predictors, clustered by country.
	o := readArtifact(t, outDir, artifacts.FileOLS)
	require.Equal(t, 1+len(modeling.PredictorTerms()), o.n)
	assert.Contains(t, o.rows, "(Intercept)")
	for _, term := range modeling.PredictorTerms() {
		require.Contains(t, o.rows, term)
		assert.Equal(t, "33", o.cell(t, term, "n"))
		assert.Equal(t, "3", o.cell(t, term, "clusters"))
		assert.Greater(t, o.float(t, term, "se"), 0.0)
		assert.Greater(t, o.float(t, term, "se_cluster"), 0.0)
	}

	prom, err := os.ReadFile(filepath.Join(outDir, artifacts.FileMetrics))
	require.NoError(t, err)
	text := string(prom)
	assert.Contains(t, text, "tip_source_rows")
	assert.Contains(t, text, `source="threep"`)
	assert.Contains(t, text, "tip_panel_rows")
	assert.Contains(t, text, "tip_stage_duration_seconds")
	assert.Contains(t, text, "# TYPE")
}

func TestFetchStageSkip(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(t.TempDir(), "never-created")
	cfg.Fetch.Skip = true

	state := &State{Config: cfg, Log: quietLog()}
	require.NoError(t, FetchStage{}.Run(context.Background(), state))

	_, err := os.Stat(cfg.RawDir())
	assert.True(t, os.IsNotExist(err))
}

func TestCleanStagePreflight(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	require.NoError(t, os.MkdirAll(cfg.RawDir(), 0o755))

	state := &State{Config: cfg, Log: quietLog()}
	err := CleanStage{}.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing usable files")
	assert.Contains(t, err.Error(), "3p_index.xlsx")
	assert.Contains(t, err.Error(), "qog.dta")
}

func TestAssembleStageRequiresClean(t *testing.T) {
	state := &State{Config: config.Default(), Log: quietLog()}
	err := AssembleStage{}.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clean stage")
}

func TestCrimStageRequiresClean(t *testing.T) {
	state := &State{Config: config.Default(), Log: quietLog()}
	err := CrimStage{}.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "criminalization table missing")
}
