// Package sources parses and cleans the upstream datasets into country-year
// tables keyed by canonical code. Each cleaner owns one file format and one
// schema; the schemas are assumed fixed (an upstream layout change shows up
// as corrupt output downstream, not as an error here).
package sources

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/countries"
)

// Raw file names under <data_dir>/raw. Fetched sources are cached under the
// same directory by the fetch stage.
const (
	FileThreeP          = "3p_index.xlsx"
	FileWGI             = "wgi.csv"
	FileQoG             = "qog.dta"
	FileGender          = "gender.xlsx"
	FileTreaty          = "untc_tip.html"
	FileAid             = "crs_aid.csv"
	FileCriminalization = "criminalization.csv"
	FileTiers           = "tip_tiers.csv"
)

// Key column names shared by every clean table and the panel.
const (
	ColCcode = "ccode"
	ColYear  = "year"
)

// RawFiles lists every file the cleaners expect under the raw directory,
// fetched and hand-placed alike.
func RawFiles() []string {
	return []string{
		FileThreeP,
		FileWGI,
		FileQoG,
		FileGender,
		FileTreaty,
		FileAid,
		WBFile(WBIndicatorGDP),
		WBFile(WBIndicatorPop),
		FileCriminalization,
		FileTiers,
	}
}

// Env carries what every cleaner needs: where the raw files live, the code
// resolver, the panel year range, and the logger.
type Env struct {
	RawDir  string
	Res     *countries.Resolver
	YearMin int
	YearMax int
	Log     *slog.Logger
}

// Path returns the location of a raw file.
func (e Env) Path(name string) string {
	return filepath.Join(e.RawDir, name)
}

// InRange reports whether an observation year falls in the panel range.
// Cleaners discard out-of-range rows up front; only the treaty events keep
// their original years (a step function needs the event, not the row).
func (e Env) InRange(year int) bool {
	return year >= e.YearMin && year <= e.YearMax
}

// Stats counts a cleaner's row accounting, fed to the run metrics.
type Stats struct {
	Rows     int // rows in the clean table
	Dropped  int // input rows discarded
	Unmapped int // of those, rows whose country code did not resolve
}

// Table is one cleaned source: (ccode, year) keys plus float value columns,
// deduplicated, ready for the panel join.
type Table struct {
	Name  string
	DF    dataframe.DataFrame
	Stats Stats
}

// Cleaner pairs a source name with its clean function.
type Cleaner struct {
	Name string
	Fn   func(Env) (Table, error)
}

// Cleaners lists the clean-stage sources in panel join order. The treaty
// page is not here: it produces events, not a country-year table, and is
// parsed separately (ParseTreaty).
func Cleaners() []Cleaner {
	return []Cleaner{
		{"threep", CleanThreeP},
		{"wgi", CleanWGI},
		{"qog", CleanQoG},
		{"gender", CleanGender},
		{"aid", CleanAid},
		{"wb_gdp", CleanGDP},
		{"wb_pop", CleanPopulation},
		{"tiers", CleanTiers},
		{"criminalization", CleanCriminalization},
	}
}

// builder accumulates clean rows and frames them as a Table. Duplicate
// (ccode, year) keys keep the first row seen; the panel join depends on the
// keys being unique.
type builder struct {
	name string
	log  *slog.Logger
	cols []string

	ccode []int
	year  []int
	vals  map[string][]float64
	seen  map[int64]bool

	stats Stats
}

func newBuilder(env Env, name string, cols ...string) *builder {
	b := &builder{
		name: name,
		log:  env.Log,
		cols: cols,
		vals: make(map[string][]float64, len(cols)),
		seen: make(map[int64]bool),
	}
	for _, c := range cols {
		b.vals[c] = []float64{}
	}
	return b
}

func (b *builder) add(ccode, year int, vals ...float64) {
	key := int64(ccode)<<16 | int64(uint16(year))
	if b.seen[key] {
		b.stats.Dropped++
		b.log.Debug("duplicate key dropped",
			slog.String("source", b.name),
			slog.Int("ccode", ccode),
			slog.Int("year", year))
		return
	}
	b.seen[key] = true
	b.ccode = append(b.ccode, ccode)
	b.year = append(b.year, year)
	for i, c := range b.cols {
		b.vals[c] = append(b.vals[c], vals[i])
	}
	b.stats.Rows++
}

// drop records a discarded input row. unmapped marks the routine case of a
// country code with no canonical equivalent.
func (b *builder) drop(unmapped bool, code string, year int) {
	b.stats.Dropped++
	if unmapped {
		b.stats.Unmapped++
		b.log.Debug("unmapped code dropped",
			slog.String("source", b.name),
			slog.String("code", code),
			slog.Int("year", year))
	}
}

func (b *builder) table() Table {
	ss := []series.Series{
		series.New(b.ccode, series.Int, ColCcode),
		series.New(b.year, series.Int, ColYear),
	}
	for _, c := range b.cols {
		ss = append(ss, series.New(b.vals[c], series.Float, c))
	}
	b.log.Info("source cleaned",
		slog.String("source", b.name),
		slog.Int("rows", b.stats.Rows),
		slog.Int("dropped", b.stats.Dropped),
		slog.Int("unmapped", b.stats.Unmapped))
	return Table{Name: b.name, DF: dataframe.New(ss...), Stats: b.stats}
}

// readCSVFile slurps a comma-separated file, tolerating ragged rows; the
// cleaners index columns by header position.
func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// parseFloat reads a numeric cell. The usual not-available spellings of the
// statistical sources count as missing.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NA", "N/A", "#N/A", "NaN", "..", ".":
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseYear reads a year cell, accepting float renderings like "2003.0".
func parseYear(s string) (int, bool) {
	v, ok := parseFloat(s)
	if !ok {
		return 0, false
	}
	y := int(v)
	if float64(y) != v || y < 1800 || y > 2100 {
		return 0, false
	}
	return y, true
}

// headerIndex maps column header names to positions, trimmed and lowered.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// cell returns row[i] or "" when the row is too short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
