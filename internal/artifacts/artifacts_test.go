package artifacts

import (
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippanel/internal/modeling"
)

func testWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWritePanel(t *testing.T) {
	na := math.NaN()
	df := dataframe.New(
		series.New([]int{260, 260}, series.Int, "ccode"),
		series.New([]int{2003, 2004}, series.Int, "year"),
		series.New([]float64{14, na}, series.Float, "p3"),
		series.New([]float64{36303.2, 0.025}, series.Float, "gdp_pc"),
		series.New([]string{"none", "NA"}, series.String, "crim_label"),
	)
	require.NoError(t, df.Err)

	w := testWriter(t)
	require.NoError(t, w.WritePanel(FilePanelBase, df))

	got, err := os.ReadFile(w.Path(FilePanelBase))
	require.NoError(t, err)
	assert.Equal(t,
		"ccode,year,p3,gdp_pc,crim_label\n"+
			"260,2003,14,36303.2,none\n"+
			"260,2004,NA,0.025,NA\n",
		string(got))
}

func TestWriteDescriptives(t *testing.T) {
	stats := []modeling.VarStat{
		{Name: "p3", N: 3, Mean: 2, SD: 1, Min: 1, Max: 3},
		{Name: "empty", N: 0, Mean: math.NaN(), SD: math.NaN(), Min: math.NaN(), Max: math.NaN()},
	}

	w := testWriter(t)
	require.NoError(t, w.WriteDescriptives(FileDescriptives, stats))

	got, err := os.ReadFile(w.Path(FileDescriptives))
	require.NoError(t, err)
	assert.Equal(t,
		"variable,n,mean,sd,min,max\n"+
			"p3,3,2.000000,1.000000,1.000000,3.000000\n"+
			"empty,0,NA,NA,NA,NA\n",
		string(got))
}

func TestWriteOLS(t *testing.T) {
	res := modeling.OLSResult{
		N:        120,
		Clusters: 15,
		Terms: []modeling.Term{
			{Name: "(Intercept)", Coef: 2.5, SE: 0.1, ClusterSE: 0.2, T: 25},
			{Name: "tip_ratified_l1", Coef: -0.25, SE: 0.05, ClusterSE: 0.07, T: -5},
		},
	}

	w := testWriter(t)
	require.NoError(t, w.WriteOLS(FileOLS, res))

	got, err := os.ReadFile(w.Path(FileOLS))
	require.NoError(t, err)
	assert.Equal(t,
		"term,coef,se,se_cluster,t,n,clusters\n"+
			"(Intercept),2.500000,0.100000,0.200000,25.000000,120,15\n"+
			"tip_ratified_l1,-0.250000,0.050000,0.070000,-5.000000,120,15\n",
		string(got))
}

func TestWriterCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base+"/nested/out", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, w.WriteDescriptives(FileDescriptives, nil))
	_, err := os.Stat(w.Path(FileDescriptives))
	assert.NoError(t, err)
}
