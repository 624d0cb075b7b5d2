package sources

import (
	"fmt"
	"strings"

	"tippanel/internal/countries"
)

// tierScores maps the State Department tier labels to their conventional
// numeric coding; the watch list sits between tiers 2 and 3.
var tierScores = map[string]float64{
	"1":   1.0,
	"2":   2.0,
	"2W":  2.5,
	"2WL": 2.5,
	"3":   3.0,
}

// CleanTiers reads the TIP report tier ratings, keyed by country name.
func CleanTiers(env Env) (Table, error) {
	rows, err := readCSVFile(env.Path(FileTiers))
	if err != nil {
		return Table{}, fmt.Errorf("tiers: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("tiers: empty file")
	}
	idx := headerIndex(rows[0])
	for _, c := range []string{"country", "year", "tier"} {
		if _, ok := idx[c]; !ok {
			return Table{}, fmt.Errorf("tiers: missing column %q", c)
		}
	}

	b := newBuilder(env, "tiers", "tier")
	for _, row := range rows[1:] {
		name := strings.TrimSpace(cell(row, idx["country"]))
		year, ok := parseYear(cell(row, idx["year"]))
		if !ok || !env.InRange(year) {
			b.drop(false, name, 0)
			continue
		}
		score, ok := tierScores[strings.ToUpper(strings.TrimSpace(cell(row, idx["tier"])))]
		if !ok {
			// Special cases and unranked years carry no score.
			b.drop(false, name, year)
			continue
		}
		ccode, ok := env.Res.Resolve(countries.Name, name, year)
		if !ok {
			b.drop(true, name, year)
			continue
		}
		b.add(ccode, year, score)
	}
	return b.table(), nil
}
