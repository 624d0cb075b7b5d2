package panel

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/sources"
)

// MergeCriminalization joins the criminalization coding onto the panel and
// forward-fills it: the coding stops in 2011, and a country's last observed
// level carries forward. The fill replaces only missing cells; years before
// a country's first observation stay missing rather than defaulting to "no
// policy". An ordered label column rides along for reporting, and the
// filled level gets the usual lags.
func MergeCriminalization(df dataframe.DataFrame, crim sources.Table, log *slog.Logger) (dataframe.DataFrame, error) {
	want := df.Nrow()
	df = df.LeftJoin(crim.DF, sources.ColCcode, sources.ColYear)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: join %s: %w", crim.Name, df.Err)
	}
	if got := df.Nrow(); got != want {
		return dataframe.DataFrame{}, fmt.Errorf(
			"panel: row count %d after joining %s, want %d: duplicate (ccode, year) keys", got, crim.Name, want)
	}

	df = df.Arrange(dataframe.Sort(sources.ColCcode), dataframe.Sort(sources.ColYear))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: sort: %w", df.Err)
	}
	codes, _ := keyColumns(df)
	vals, err := colFloats(df, "crim_level")
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	filled := make([]float64, len(vals))
	last := math.NaN()
	for i := range vals {
		if i == 0 || codes[i] != codes[i-1] {
			last = math.NaN()
		}
		if !math.IsNaN(vals[i]) {
			last = vals[i]
		}
		filled[i] = vals[i]
		if math.IsNaN(filled[i]) {
			filled[i] = last
		}
	}

	labels := make([]string, len(filled))
	for i, v := range filled {
		if math.IsNaN(v) {
			labels[i] = "NA"
			continue
		}
		labels[i] = sources.CrimLabel(int(v))
	}

	df = df.Mutate(series.New(filled, series.Float, "crim_level"))
	df = df.Mutate(series.New(labels, series.String, "crim_label"))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: criminalization columns: %w", df.Err)
	}

	log.Debug("criminalization merged",
		slog.Int("observed", crim.Stats.Rows),
		slog.Int("panel_rows", df.Nrow()))

	return Lag(df, []string{"crim_level"})
}
