package sources

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"tippanel/internal/countries"
)

// CleanAid reads the CRS commitment extract and rebases every line item to
// constant prices of the panel's final year, then sums line items per
// country-year.
//
// Each row carries the commitment in current USD thousands and in constant
// prices of whatever base year the file vintage used. The implied deflator
// of a row is current/constant*100; conceptually one value per year, in
// practice jittered by rounding, so the canonical target-year deflator is
// the median across the target year's rows. A row rebased to its own year
// recovers its current value to within float noise.
func CleanAid(env Env) (Table, error) {
	rows, err := readCSVFile(env.Path(FileAid))
	if err != nil {
		return Table{}, fmt.Errorf("aid: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("aid: empty file")
	}
	idx := headerIndex(rows[0])
	for _, c := range []string{"recipient", "year", "usd_commitment", "usd_commitment_defl"} {
		if _, ok := idx[c]; !ok {
			return Table{}, fmt.Errorf("aid: missing column %q", c)
		}
	}

	type item struct {
		name     string
		year     int
		current  float64
		deflator float64
	}
	var items []item
	var cohort []float64 // target-year deflators
	b := newBuilder(env, "aid", "aid")

	for _, row := range rows[1:] {
		year, ok := parseYear(cell(row, idx["year"]))
		if !ok {
			b.drop(false, "", 0)
			continue
		}
		cur, okCur := parseFloat(cell(row, idx["usd_commitment"]))
		con, okCon := parseFloat(cell(row, idx["usd_commitment_defl"]))
		// Zero on either side leaves no implied deflator; such a line
		// cannot be rebased and would contribute nothing to the sum.
		if !okCur || !okCon || cur == 0 || con == 0 {
			b.drop(false, "", year)
			continue
		}
		defl := cur / con * 100
		if year == env.YearMax {
			cohort = append(cohort, defl)
		}
		if !env.InRange(year) {
			b.drop(false, "", year)
			continue
		}
		items = append(items, item{
			name:     strings.TrimSpace(cell(row, idx["recipient"])),
			year:     year,
			current:  cur,
			deflator: defl,
		})
	}

	if len(cohort) == 0 {
		return Table{}, fmt.Errorf("aid: no rows in target base year %d, cannot rebase", env.YearMax)
	}
	sort.Float64s(cohort)
	canonical := stat.Quantile(0.5, stat.Empirical, cohort, nil)

	// Rebase per line item, then sum per country-year in first-seen order.
	sums := make(map[int64]float64)
	var order []int64
	for _, it := range items {
		ccode, ok := env.Res.Resolve(countries.Name, it.name, it.year)
		if !ok {
			b.drop(true, it.name, it.year)
			continue
		}
		key := int64(ccode)<<16 | int64(uint16(it.year))
		if _, ok := sums[key]; !ok {
			order = append(order, key)
		}
		sums[key] += it.current * canonical / it.deflator
	}
	for _, key := range order {
		b.add(int(key>>16), int(uint16(key)), sums[key])
	}
	return b.table(), nil
}
