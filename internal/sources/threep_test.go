package sources

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeXLSX builds a workbook fixture. An empty sheet name targets the
// default sheet.
func writeXLSX(t *testing.T, path, sheet string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	name := f.GetSheetName(0)
	if sheet != "" && sheet != name {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		name = sheet
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow(name, fmt.Sprintf("A%d", i+1), &r))
	}
	require.NoError(t, f.SaveAs(path))
}

func threePRows() [][]any {
	return [][]any{
		{"The 3P Anti-trafficking Policy Index"},
		{},
		{"Country", "iso3", "year", "Prosecution", "Protection", "Prevention", "P3"},
		{"Germany", "DEU", 2003, 5, 5, 4, 14},
		{"Germany", "DEU", 2004, 5, 5, 5, 15},
		{"Germany", "DEU", 2016, 5, 5, 5, 15},
		{"Serbia", "SRB", 2003, 2, 2, 2, 6},
		{"Serbia", "SRB", 2008, 3, 2, 2.5, 7},
		{"Cambodia", "KHM", "2003.0", 4, 3, 3, 10},
		{"Timor-Leste", "TLS", 2000, 1, 1, 1, 3},
		{"Hong Kong", "HKG", 2005, 3, 3, 3, 9},
		{"Unknownland", "XYZ", "n/a", 1, 1, 1, 3},
		{},
	}
}

func TestCleanThreeP(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir+"/"+FileThreeP, "", threePRows())

	tb, err := CleanThreeP(testEnv(t, dir))
	require.NoError(t, err)

	assert.Equal(t, []string{ColCcode, ColYear, "prosecution", "protection", "prevention", "p3"}, tb.DF.Names())
	assert.Equal(t, 5, tb.DF.Nrow())
	assert.Equal(t, 5, tb.Stats.Rows)
	assert.Equal(t, 4, tb.Stats.Dropped)
	// TLS predates its 2002 independence here, HKG is a deliberate drop.
	assert.Equal(t, 2, tb.Stats.Unmapped)

	v, ok := tableValue(t, tb, 260, 2003, "p3")
	require.True(t, ok)
	assert.InDelta(t, 14, v, 1e-12)
	v, ok = tableValue(t, tb, 260, 2004, "prevention")
	require.True(t, ok)
	assert.InDelta(t, 5, v, 1e-12)

	// Serbia splits by year: union era on 345, then 340.
	v, ok = tableValue(t, tb, 345, 2003, "p3")
	require.True(t, ok)
	assert.InDelta(t, 6, v, 1e-12)
	v, ok = tableValue(t, tb, 340, 2008, "p3")
	require.True(t, ok)
	assert.InDelta(t, 7, v, 1e-12)
	// Fractional index cells do not survive coercion.
	_, ok = tableValue(t, tb, 340, 2008, "prevention")
	assert.False(t, ok)

	v, ok = tableValue(t, tb, 811, 2003, "p3")
	require.True(t, ok)
	assert.InDelta(t, 10, v, 1e-12)

	assert.False(t, hasKey(tb, 260, 2016))
}

func TestCleanThreePMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir+"/"+FileThreeP, "", [][]any{
		{"Country", "iso3", "year", "Prosecution", "Protection", "P3"},
		{"Germany", "DEU", 2003, 5, 5, 14},
	})

	_, err := CleanThreeP(testEnv(t, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevention")
}

func TestCleanThreePNoHeader(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir+"/"+FileThreeP, "", [][]any{
		{"notes only"},
	})

	_, err := CleanThreeP(testEnv(t, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header row")
}

func TestIndexValue(t *testing.T) {
	assert.Equal(t, 3.0, indexValue("3"))
	assert.Equal(t, 3.0, indexValue("3.0000000001"))
	assert.True(t, math.IsNaN(indexValue("2.5")))
	assert.True(t, math.IsNaN(indexValue("")))
	assert.True(t, math.IsNaN(indexValue("..")))
}
