package panel

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/sources"
)

// Derived column names.
const (
	ColAidPctGDP = "aid_pct_gdp"
	ColLogGDP    = "log_gdp_pc"
	ColLogAid    = "log_aid"
	ColLogPop    = "log_pop"
)

// Derive adds the post-join columns: aid missing becomes zero (no reported
// commitments means no aid, not unknown aid), aid as a percent of GDP, and
// log(1+x) transforms for the skewed monetary series. Aid arrives in USD
// thousands; GDP per capita times population gives the denominator in USD.
func Derive(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	aid, err := colFloats(df, "aid")
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	gdp, err := colFloats(df, "gdp_pc")
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	pop, err := colFloats(df, "pop")
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	n := df.Nrow()
	aid0 := make([]float64, n)
	pct := make([]float64, n)
	logGDP := make([]float64, n)
	logAid := make([]float64, n)
	logPop := make([]float64, n)
	for i := 0; i < n; i++ {
		a := aid[i]
		if math.IsNaN(a) {
			a = 0
		}
		aid0[i] = a

		denom := gdp[i] * pop[i]
		if math.IsNaN(denom) || denom == 0 {
			pct[i] = math.NaN()
		} else {
			pct[i] = 100 * a * 1000 / denom
		}

		logGDP[i] = math.Log1p(gdp[i])
		logAid[i] = math.Log1p(a)
		logPop[i] = math.Log1p(pop[i])
	}

	df = df.Mutate(series.New(aid0, series.Float, "aid"))
	df = df.Mutate(series.New(pct, series.Float, ColAidPctGDP))
	df = df.Mutate(series.New(logGDP, series.Float, ColLogGDP))
	df = df.Mutate(series.New(logAid, series.Float, ColLogAid))
	df = df.Mutate(series.New(logPop, series.Float, ColLogPop))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: derive: %w", df.Err)
	}
	return df, nil
}

// LagVars is the predictor set that enters the regressions lagged.
func LagVars() []string {
	return []string{
		"p3", "prosecution", "protection", "prevention",
		"cc_est", "rule_of_law", "democracy", "wecon", "flfp", "tier",
		ColLogGDP, ColLogAid, ColAidPctGDP, ColRatified,
	}
}

// Lag adds _l1 and _l2 columns for each named variable: the same ccode's
// value one and two years back, missing when that row is absent or itself
// missing. Lags are taken from the assembled panel's own rows, never from a
// source table, so they only exist once the panel is complete.
func Lag(df dataframe.DataFrame, vars []string) (dataframe.DataFrame, error) {
	df = df.Arrange(dataframe.Sort(sources.ColCcode), dataframe.Sort(sources.ColYear))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: lag sort: %w", df.Err)
	}
	codes, years := keyColumns(df)

	for _, name := range vars {
		vals, err := colFloats(df, name)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		l1 := lagged(codes, years, vals, 1)
		l2 := lagged(codes, years, vals, 2)
		df = df.Mutate(series.New(l1, series.Float, name+"_l1"))
		df = df.Mutate(series.New(l2, series.Float, name+"_l2"))
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("panel: lag %s: %w", name, df.Err)
		}
	}
	return df, nil
}

// lagged pulls the year-k value within each ccode run. Rows are sorted by
// (ccode, year) with unique years, so the match sits at most k positions up;
// the scan stops at the ccode boundary or once years fall below the target.
func lagged(codes, years []int, vals []float64, k int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		out[i] = math.NaN()
		for j := i - 1; j >= 0 && codes[j] == codes[i] && years[j] >= years[i]-k; j-- {
			if years[j] == years[i]-k {
				out[i] = vals[j]
				break
			}
		}
	}
	return out
}

// colFloats extracts a column as floats, NaN for missing.
func colFloats(df dataframe.DataFrame, name string) ([]float64, error) {
	for _, have := range df.Names() {
		if have == name {
			return df.Col(name).Float(), nil
		}
	}
	return nil, fmt.Errorf("panel: no column %q", name)
}
