// Package artifacts serializes the pipeline outputs: the three panel CSVs,
// the descriptives table and the regression table. Missing cells render as
// NA so the files load cleanly in R and pandas.
package artifacts

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/modeling"
)

// Artifact file names.
const (
	FilePanelBase    = "panel_base.csv"
	FilePanelLagged  = "panel_lagged.csv"
	FilePanelCrim    = "panel_crim.csv"
	FileDescriptives = "descriptives.csv"
	FileOLS          = "ols_p3.csv"
	FileMetrics      = "run_metrics.prom"
)

// Writer writes artifacts under a single output directory.
type Writer struct {
	dir string
	log *slog.Logger
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string, log *slog.Logger) *Writer {
	return &Writer{dir: dir, log: log}
}

// Path resolves an artifact file name inside the output directory.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WritePanel serializes a panel dataframe. Numeric cells use the shortest
// exact decimal form, missing cells become NA, string columns pass through.
func (w *Writer) WritePanel(name string, df dataframe.DataFrame) error {
	names := df.Names()
	cols := make([][]string, len(names))
	for i, colName := range names {
		col := df.Col(colName)
		if col.Err != nil {
			return fmt.Errorf("artifacts: column %s: %w", colName, col.Err)
		}
		if col.Type() == series.String {
			cols[i] = col.Records()
			continue
		}
		vals := col.Float()
		rendered := make([]string, len(vals))
		for j, v := range vals {
			rendered[j] = formatValue(v)
		}
		cols[i] = rendered
	}

	records := make([][]string, df.Nrow())
	for r := range records {
		row := make([]string, len(cols))
		for c := range cols {
			row[c] = cols[c][r]
		}
		records[r] = row
	}
	return w.writeCSV(name, names, records)
}

// WriteDescriptives serializes the per-variable summary table.
func (w *Writer) WriteDescriptives(name string, stats []modeling.VarStat) error {
	records := make([][]string, 0, len(stats))
	for _, s := range stats {
		records = append(records, []string{
			s.Name,
			strconv.Itoa(s.N),
			formatFixed(s.Mean),
			formatFixed(s.SD),
			formatFixed(s.Min),
			formatFixed(s.Max),
		})
	}
	return w.writeCSV(name, []string{"variable", "n", "mean", "sd", "min", "max"}, records)
}

// WriteOLS serializes a fitted regression, one row per term.
func (w *Writer) WriteOLS(name string, res modeling.OLSResult) error {
	records := make([][]string, 0, len(res.Terms))
	for _, term := range res.Terms {
		records = append(records, []string{
			term.Name,
			formatFixed(term.Coef),
			formatFixed(term.SE),
			formatFixed(term.ClusterSE),
			formatFixed(term.T),
			strconv.Itoa(res.N),
			strconv.Itoa(res.Clusters),
		})
	}
	return w.writeCSV(name, []string{"term", "coef", "se", "se_cluster", "t", "n", "clusters"}, records)
}

func (w *Writer) writeCSV(name string, header []string, records [][]string) error {
	path := w.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifacts: create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifacts: create %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("artifacts: write header of %s: %w", name, err)
	}
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("artifacts: write %s: %w", name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("artifacts: flush %s: %w", name, err)
	}

	w.log.Info("wrote artifact",
		slog.String("file", name),
		slog.Int("rows", len(records)))
	return nil
}

// formatValue renders a panel cell: NA for missing, otherwise the shortest
// decimal form that round-trips (whole floats print without a point).
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatFixed renders a statistic with fixed six decimals, NA for missing.
func formatFixed(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
