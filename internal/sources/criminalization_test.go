package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanCriminalization(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, FileCriminalization,
		"alpha2,year,level\n"+
			"DE,2000,0\n"+
			"DE,2003,1\n"+
			"DE,2005,2\n"+
			"RS,2003,1\n"+ // union era: 345
			"RS,2009,2\n"+ // post-split Serbia: 340
			"TL,2000,1\n"+ // predates 2002 independence
			"DE,1995,1\n"+
			"DE,2004,3\n"+ // out-of-scale level
			"DE,2006,1.5\n"+
			"ZZ,2003,1\n")

	tb, err := CleanCriminalization(testEnv(t, dir))
	require.NoError(t, err)

	assert.Equal(t, []string{ColCcode, ColYear, "crim_level"}, tb.DF.Names())
	assert.Equal(t, 5, tb.Stats.Rows)
	assert.Equal(t, 5, tb.Stats.Dropped)
	assert.Equal(t, 2, tb.Stats.Unmapped)

	v, ok := tableValue(t, tb, 260, 2003, "crim_level")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = tableValue(t, tb, 260, 2005, "crim_level")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	v, ok = tableValue(t, tb, 345, 2003, "crim_level")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = tableValue(t, tb, 340, 2009, "crim_level")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	assert.False(t, hasKey(tb, 260, 2004))
	assert.False(t, hasKey(tb, 260, 2006))
}

func TestCleanCriminalizationMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, FileCriminalization, "alpha2,year\nDE,2003\n")

	_, err := CleanCriminalization(testEnv(t, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level")
}

func TestCrimLabel(t *testing.T) {
	assert.Equal(t, "none", CrimLabel(0))
	assert.Equal(t, "partial", CrimLabel(1))
	assert.Equal(t, "full", CrimLabel(2))
	assert.Equal(t, "", CrimLabel(7))
}
