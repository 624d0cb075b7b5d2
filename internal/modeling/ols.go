package modeling

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"
)

// OLSSpec names a pooled regression: Y on X with an intercept, standard
// errors clustered on the Cluster column (conventional ones are reported
// alongside).
type OLSSpec struct {
	Y       string
	X       []string
	Cluster string
}

// Term is one estimated coefficient.
type Term struct {
	Name      string
	Coef      float64
	SE        float64
	ClusterSE float64
	T         float64
}

// OLSResult is a fitted regression. Terms start with the intercept.
type OLSResult struct {
	N        int
	Clusters int
	Terms    []Term
}

// FitOLS estimates the spec by least squares with listwise deletion: any
// row missing the outcome, a regressor or the cluster key is excluded.
func FitOLS(df dataframe.DataFrame, spec OLSSpec) (OLSResult, error) {
	y, err := column(df, spec.Y)
	if err != nil {
		return OLSResult{}, err
	}
	cluster, err := column(df, spec.Cluster)
	if err != nil {
		return OLSResult{}, err
	}
	xs := make([][]float64, len(spec.X))
	for i, name := range spec.X {
		if xs[i], err = column(df, name); err != nil {
			return OLSResult{}, err
		}
	}

	// Listwise deletion.
	var rows []int
	for i := range y {
		if math.IsNaN(y[i]) || math.IsNaN(cluster[i]) {
			continue
		}
		ok := true
		for _, x := range xs {
			if math.IsNaN(x[i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}

	n := len(rows)
	k := len(spec.X) + 1
	if n <= k {
		return OLSResult{}, fmt.Errorf("modeling: %d usable rows for %d parameters", n, k)
	}

	X := mat.NewDense(n, k, nil)
	yv := mat.NewVecDense(n, nil)
	groups := make([]float64, n)
	for r, i := range rows {
		X.Set(r, 0, 1)
		for j, x := range xs {
			X.Set(r, j+1, x[i])
		}
		yv.SetVec(r, y[i])
		groups[r] = cluster[i]
	}

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		return OLSResult{}, fmt.Errorf("modeling: solve: %w", err)
	}

	// Residuals and X'X inverse.
	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(X, &beta)
	resid := mat.NewVecDense(n, nil)
	resid.SubVec(yv, fitted)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return OLSResult{}, fmt.Errorf("modeling: X'X singular: %w", err)
	}

	// Conventional covariance.
	var ssr float64
	for i := 0; i < n; i++ {
		ssr += resid.AtVec(i) * resid.AtVec(i)
	}
	s2 := ssr / float64(n-k)

	// Cluster-robust sandwich: sum the per-cluster score outer products,
	// with the usual finite-sample correction.
	scores := make(map[float64][]float64)
	for i := 0; i < n; i++ {
		u := scores[groups[i]]
		if u == nil {
			u = make([]float64, k)
			scores[groups[i]] = u
		}
		for j := 0; j < k; j++ {
			u[j] += X.At(i, j) * resid.AtVec(i)
		}
	}
	g := len(scores)
	meat := mat.NewDense(k, k, nil)
	for _, u := range scores {
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				meat.Set(a, b, meat.At(a, b)+u[a]*u[b])
			}
		}
	}
	var clusterCov mat.Dense
	clusterCov.Mul(&inv, meat)
	clusterCov.Mul(&clusterCov, &inv)
	correction := 1.0
	if g > 1 {
		correction = float64(g) / float64(g-1) * float64(n-1) / float64(n-k)
	}

	res := OLSResult{N: n, Clusters: g}
	names := append([]string{"(Intercept)"}, spec.X...)
	for j, name := range names {
		se := math.Sqrt(s2 * inv.At(j, j))
		cse := math.Sqrt(correction * clusterCov.At(j, j))
		tstat := math.NaN()
		if se > 0 {
			tstat = beta.AtVec(j) / se
		}
		res.Terms = append(res.Terms, Term{
			Name:      name,
			Coef:      beta.AtVec(j),
			SE:        se,
			ClusterSE: cse,
			T:         tstat,
		})
	}
	return res, nil
}

// PredictorTerms is the regressor list for the p3 replication: the lag-1
// of every predictor that is not itself a policy-index outcome.
func PredictorTerms() []string {
	return []string{
		"tip_ratified_l1", "cc_est_l1", "rule_of_law_l1", "democracy_l1",
		"wecon_l1", "flfp_l1", "tier_l1", "log_gdp_pc_l1", "log_aid_l1",
		"aid_pct_gdp_l1",
	}
}

func column(df dataframe.DataFrame, name string) ([]float64, error) {
	for _, have := range df.Names() {
		if have == name {
			return df.Col(name).Float(), nil
		}
	}
	return nil, fmt.Errorf("modeling: no column %q", name)
}
