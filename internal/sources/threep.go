package sources

import (
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"tippanel/internal/countries"
)

// CleanThreeP reads the 3P anti-trafficking policy index workbook. This is
// the primary source: its distinct country codes later define the panel
// scaffold. Countries arrive as alpha-3 codes; the three sub-indices are
// 1-5 and the aggregate p3 is their sum.
func CleanThreeP(env Env) (Table, error) {
	f, err := excelize.OpenFile(env.Path(FileThreeP))
	if err != nil {
		return Table{}, fmt.Errorf("threep: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("threep: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("threep: read sheet %s: %w", sheets[0], err)
	}

	// The header row is the one naming the year and aggregate columns.
	headerRow := -1
	for i, row := range rows {
		text := strings.ToLower(strings.Join(row, " "))
		if strings.Contains(text, "year") && strings.Contains(text, "p3") {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return Table{}, fmt.Errorf("threep: header row not found")
	}
	idx := headerIndex(rows[headerRow])
	for _, c := range []string{"country", "iso3", "year", "prosecution", "protection", "prevention", "p3"} {
		if _, ok := idx[c]; !ok {
			return Table{}, fmt.Errorf("threep: missing column %q", c)
		}
	}

	b := newBuilder(env, "threep", "prosecution", "protection", "prevention", "p3")
	for _, row := range rows[headerRow+1:] {
		iso3 := strings.TrimSpace(cell(row, idx["iso3"]))
		year, ok := parseYear(cell(row, idx["year"]))
		if iso3 == "" && year == 0 {
			continue // blank filler row
		}
		if !ok {
			b.drop(false, iso3, 0)
			continue
		}
		if !env.InRange(year) {
			b.drop(false, iso3, year)
			continue
		}
		ccode, ok := env.Res.Resolve(countries.Alpha3, iso3, year)
		if !ok {
			b.drop(true, iso3, year)
			continue
		}
		b.add(ccode, year,
			indexValue(cell(row, idx["prosecution"])),
			indexValue(cell(row, idx["protection"])),
			indexValue(cell(row, idx["prevention"])),
			indexValue(cell(row, idx["p3"])))
	}
	return b.table(), nil
}

// indexValue coerces a policy-index cell to its integer value, NaN when the
// cell is blank or not a whole number.
func indexValue(s string) float64 {
	v, ok := parseFloat(s)
	if !ok {
		return math.NaN()
	}
	r := math.Round(v)
	if math.Abs(v-r) > 1e-9 {
		return math.NaN()
	}
	return r
}
