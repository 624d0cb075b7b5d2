package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanWGI(t *testing.T) {
	tb, err := CleanWGI(testEnv(t, "testdata"))
	require.NoError(t, err)

	// Both indicators melt onto one row per country-year.
	cc, ok := tableValue(t, tb, 260, 2003, "cc_est")
	require.True(t, ok)
	assert.InDelta(t, 1.87, cc, 1e-9)
	rl, ok := tableValue(t, tb, 260, 2003, "rule_of_law")
	require.True(t, ok)
	assert.InDelta(t, 1.54, rl, 1e-9)

	// The state-union code carries the federation through 2005; the
	// successor code starts 2006. No overlap between the two.
	v, ok := tableValue(t, tb, 345, 2005, "cc_est")
	require.True(t, ok)
	assert.InDelta(t, -0.42, v, 1e-9)
	v, ok = tableValue(t, tb, 340, 2006, "cc_est")
	require.True(t, ok)
	assert.InDelta(t, -0.28, v, 1e-9)
	assert.False(t, hasKey(tb, 345, 2006))
	assert.False(t, hasKey(tb, 340, 2005))

	// Rule of law never observed for the federation rows.
	_, ok = tableValue(t, tb, 345, 2003, "rule_of_law")
	assert.False(t, ok)

	// Aggregates drop; unrelated indicators are not rows at all.
	assert.False(t, hasKey(tb, 101, 2000))
	assert.Equal(t, 1, tb.Stats.Unmapped) // the World rows
}

func TestCleanWGIEmptyFilter(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, FileWGI,
		"Country Name,Country Code,Indicator Name,Indicator Code,2003\n"+
			"Germany,DEU,Voice,VA.EST,0.5\n")

	tb, err := CleanWGI(testEnv(t, dir))
	require.NoError(t, err)
	assert.Equal(t, 0, tb.DF.Nrow())
}

func TestCleanWGIMissingHeader(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, FileWGI, "a,b,c\n1,2,3\n")

	_, err := CleanWGI(testEnv(t, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}
