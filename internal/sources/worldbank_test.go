package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanGDP(t *testing.T) {
	tb, err := CleanGDP(testEnv(t, "testdata"))
	require.NoError(t, err)

	v, ok := tableValue(t, tb, 260, 2003, "gdp_pc")
	require.True(t, ok)
	assert.InDelta(t, 36303.2, v, 1e-6)

	// Backfilled Serbia years before the split belong to the federation.
	v, ok = tableValue(t, tb, 345, 2003, "gdp_pc")
	require.True(t, ok)
	assert.InDelta(t, 3500.0, v, 1e-6)
	v, ok = tableValue(t, tb, 340, 2008, "gdp_pc")
	require.True(t, ok)
	assert.InDelta(t, 5458.1, v, 1e-6)

	// Null observations yield no row; aggregates drop.
	assert.False(t, hasKey(tb, 260, 2005))
	assert.Equal(t, 1, tb.Stats.Unmapped)
}

func TestCleanPopulation(t *testing.T) {
	tb, err := CleanPopulation(testEnv(t, "testdata"))
	require.NoError(t, err)

	v, ok := tableValue(t, tb, 260, 2003, "pop")
	require.True(t, ok)
	assert.InDelta(t, 82534176, v, 1)
	assert.Equal(t, 3, tb.Stats.Rows)
}

func TestCleanWorldBankBadFile(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, WBFile(WBIndicatorGDP), `{"not":"a pair"}`)

	_, err := CleanGDP(testEnv(t, dir))
	require.Error(t, err)
}
