// Package modeling holds the statistics stage: descriptive summaries of
// the panel variables and the pooled OLS replication with conventional and
// country-clustered standard errors.
package modeling

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// VarStat summarizes one numeric panel variable over its non-missing cells.
type VarStat struct {
	Name string
	N    int
	Mean float64
	SD   float64
	Min  float64
	Max  float64
}

// Describe computes N, mean, sample sd, min and max per numeric column, in
// column order. String columns and the excluded names (normally the key
// columns) are skipped. A variable with no observations keeps NaN moments.
func Describe(df dataframe.DataFrame, exclude ...string) []VarStat {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	var out []VarStat
	for _, name := range df.Names() {
		if skip[name] {
			continue
		}
		col := df.Col(name)
		if col.Type() == series.String {
			continue
		}

		var obs []float64
		for _, v := range col.Float() {
			if !math.IsNaN(v) {
				obs = append(obs, v)
			}
		}

		vs := VarStat{Name: name, N: len(obs), Mean: math.NaN(), SD: math.NaN(), Min: math.NaN(), Max: math.NaN()}
		if len(obs) > 0 {
			vs.Mean = stat.Mean(obs, nil)
			vs.SD = stat.StdDev(obs, nil)
			vs.Min, vs.Max = obs[0], obs[0]
			for _, v := range obs[1:] {
				vs.Min = math.Min(vs.Min, v)
				vs.Max = math.Max(vs.Max, v)
			}
		}
		out = append(out, vs)
	}
	return out
}
