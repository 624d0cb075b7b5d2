package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippanel/internal/countries"
	"tippanel/internal/sources"
)

func mustResolver(t *testing.T) *countries.Resolver {
	t.Helper()
	res, err := countries.Load()
	require.NoError(t, err)
	return res
}

// assertStep checks a 0/1 series switches at most once, from 0 to 1.
func assertStep(t *testing.T, vals []float64, ccode int) {
	t.Helper()
	for i := 1; i < len(vals); i++ {
		assert.GreaterOrEqual(t, vals[i], vals[i-1],
			"ccode %d: step function decreased at position %d", ccode, i)
	}
}

func TestBinarizeTreaty(t *testing.T) {
	primary := makeTable(t, "threep", []string{"p3"}, []trow{
		{2, 2000, []float64{9}},
		{20, 2000, []float64{12}},
	})
	scaffold, err := Scaffold(primary, 2000, 2002)
	require.NoError(t, err)

	actions := []sources.TreatyAction{
		{Ccode: 2, Name: "United States of America", SignYear: 2000, RatYear: 2001, Kind: "ratification"},
	}
	df, err := BinarizeTreaty(scaffold, actions, mustResolver(t))
	require.NoError(t, err)

	rat := seriesByCode(df, ColRatified)
	assert.Equal(t, []float64{0, 1, 1}, rat[2])
	assert.Equal(t, []float64{0, 0, 0}, rat[20])

	sig := seriesByCode(df, ColSigned)
	assert.Equal(t, []float64{1, 1, 1}, sig[2])
	assert.Equal(t, []float64{0, 0, 0}, sig[20])

	for c, vals := range rat {
		assertStep(t, vals, c)
	}
}

func TestBinarizeTreatySuccessors(t *testing.T) {
	primary := makeTable(t, "threep", []string{"p3"}, []trow{
		{340, 2006, []float64{7}},
		{341, 2006, []float64{5}},
		{345, 2004, []float64{6}},
	})
	scaffold, err := Scaffold(primary, 2004, 2007)
	require.NoError(t, err)

	// FR Yugoslavia signed 2000 and ratified 2001; Montenegro deposited
	// its own succession in 2006. Serbia has no row of its own here.
	actions := []sources.TreatyAction{
		{Ccode: 345, Name: "Serbia", SignYear: 2000, RatYear: 2001, Kind: "ratification"},
		{Ccode: 341, Name: "Montenegro", RatYear: 2006, Kind: "succession"},
	}
	df, err := BinarizeTreaty(scaffold, actions, mustResolver(t))
	require.NoError(t, err)

	rat := seriesByCode(df, ColRatified)
	// Years 2004..2007.
	assert.Equal(t, []float64{1, 1, 1, 1}, rat[345])
	assert.Equal(t, []float64{0, 0, 1, 1}, rat[340], "inherited from the 2006 split, not from 2001")
	assert.Equal(t, []float64{0, 0, 1, 1}, rat[341], "own succession row")

	sig := seriesByCode(df, ColSigned)
	assert.Equal(t, []float64{1, 1, 1, 1}, sig[345])
	assert.Equal(t, []float64{0, 0, 1, 1}, sig[340])
	assert.Equal(t, []float64{0, 0, 1, 1}, sig[341])

	for c, vals := range rat {
		assertStep(t, vals, c)
	}
}

func TestBinarizeTreatyEarliestEventWins(t *testing.T) {
	primary := makeTable(t, "threep", []string{"p3"}, []trow{
		{2, 2000, []float64{9}},
	})
	scaffold, err := Scaffold(primary, 2000, 2004)
	require.NoError(t, err)

	// Duplicate listings keep the earliest year.
	actions := []sources.TreatyAction{
		{Ccode: 2, RatYear: 2003, Kind: "ratification"},
		{Ccode: 2, RatYear: 2001, Kind: "accession"},
	}
	df, err := BinarizeTreaty(scaffold, actions, mustResolver(t))
	require.NoError(t, err)

	rat := seriesByCode(df, ColRatified)
	assert.Equal(t, []float64{0, 1, 1, 1, 1}, rat[2])
}
