// Package panel assembles the country-year panel: a fixed scaffold of the
// primary source's countries crossed with the study years, left-joined with
// every clean source table, then extended with treaty step functions,
// derived columns, lags and the forward-filled criminalization coding.
package panel

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/sources"
)

// Scaffold builds the empty panel: the cross product of the primary
// source's distinct ccodes and the inclusive year range. The scaffold fixes
// the row count of everything downstream; no join may grow or shrink it.
func Scaffold(primary sources.Table, yearMin, yearMax int) (dataframe.DataFrame, error) {
	if primary.DF.Nrow() == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("panel: primary source %s is empty", primary.Name)
	}

	seen := make(map[int]bool)
	var codes []int
	for _, v := range primary.DF.Col(sources.ColCcode).Float() {
		c := int(v)
		if !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	sort.Ints(codes)

	years := make([]int, 0, yearMax-yearMin+1)
	for y := yearMin; y <= yearMax; y++ {
		years = append(years, y)
	}

	left := dataframe.New(series.New(codes, series.Int, sources.ColCcode))
	right := dataframe.New(series.New(years, series.Int, sources.ColYear))
	df := left.CrossJoin(right)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: scaffold: %w", df.Err)
	}
	return df, nil
}

// Assemble left-joins every clean table onto the scaffold in the given
// order. The join order must not affect values (value columns are disjoint)
// but is kept fixed for reproducible artifacts. A row count that drifts
// from the scaffold's means duplicate join keys upstream and aborts the
// run.
func Assemble(scaffold dataframe.DataFrame, tables []sources.Table, log *slog.Logger) (dataframe.DataFrame, error) {
	want := scaffold.Nrow()
	df := scaffold
	for _, tb := range tables {
		df = df.LeftJoin(tb.DF, sources.ColCcode, sources.ColYear)
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("panel: join %s: %w", tb.Name, df.Err)
		}
		if got := df.Nrow(); got != want {
			return dataframe.DataFrame{}, fmt.Errorf(
				"panel: row count %d after joining %s, want %d: duplicate (ccode, year) keys", got, tb.Name, want)
		}
		log.Debug("joined source",
			slog.String("source", tb.Name),
			slog.Int("rows", tb.Stats.Rows),
			slog.Int("dropped", tb.Stats.Dropped))
	}

	df = df.Arrange(dataframe.Sort(sources.ColCcode), dataframe.Sort(sources.ColYear))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: sort: %w", df.Err)
	}
	return df, nil
}

// keyColumns pulls the ccode and year columns as ints, in row order.
func keyColumns(df dataframe.DataFrame) (codes, years []int) {
	cf := df.Col(sources.ColCcode).Float()
	yf := df.Col(sources.ColYear).Float()
	codes = make([]int, len(cf))
	years = make([]int, len(yf))
	for i := range cf {
		codes[i] = int(cf[i])
		years[i] = int(yf[i])
	}
	return codes, years
}
