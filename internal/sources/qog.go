package sources

import (
	"fmt"
	"math"
	"strconv"

	"tippanel/internal/stata"
)

// CleanQoG reads the Quality of Government subset, a Stata 118 file keyed
// by legacy COW numeric codes. The numeric override table absorbs the
// scheme drift (679 Yemen, 255 reunified Germany, 345 by lineage).
func CleanQoG(env Env) (Table, error) {
	ds, err := stata.ReadFile(env.Path(FileQoG), "ccodecow", "year", "fh_ipolity2", "wecon")
	if err != nil {
		return Table{}, fmt.Errorf("qog: %w", err)
	}

	b := newBuilder(env, "qog", "democracy", "wecon")
	for i := 0; i < ds.N; i++ {
		year, ok := ds.Int("year", i)
		if !ok {
			b.drop(false, "", 0)
			continue
		}
		if !env.InRange(year) {
			b.drop(false, "", year)
			continue
		}
		cow, ok := ds.Int("ccodecow", i)
		if !ok {
			// Non-state entries carry a missing code.
			b.drop(false, "", year)
			continue
		}
		ccode, ok := env.Res.ResolveNumeric(cow, year)
		if !ok {
			b.drop(true, strconv.Itoa(cow), year)
			continue
		}

		dem := math.NaN()
		if v, ok := ds.Float("fh_ipolity2", i); ok {
			dem = v
		}
		we := math.NaN()
		if v, ok := ds.Float("wecon", i); ok {
			we = v
		}
		b.add(ccode, year, dem, we)
	}
	return b.table(), nil
}
