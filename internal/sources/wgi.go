package sources

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"tippanel/internal/countries"
)

// WGI indicator codes kept from the governance bundle.
const (
	wgiCorruption = "CC.EST"
	wgiRuleOfLaw  = "RL.EST"
)

// CleanWGI melts the Worldwide Governance Indicators bundle: one row per
// country and indicator, one column per year. Only control of corruption
// and rule of law are kept. A bundle that contains neither yields an empty
// table, not an error.
func CleanWGI(env Env) (Table, error) {
	rows, err := readCSVFile(env.Path(FileWGI))
	if err != nil {
		return Table{}, fmt.Errorf("wgi: %w", err)
	}

	headerRow := -1
	for i, row := range rows {
		text := strings.ToLower(strings.Join(row, " "))
		if strings.Contains(text, "country code") && strings.Contains(text, "indicator code") {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return Table{}, fmt.Errorf("wgi: header row not found")
	}
	idx := headerIndex(rows[headerRow])
	codeCol, okCode := idx["country code"]
	indCol, okInd := idx["indicator code"]
	if !okCode || !okInd {
		return Table{}, fmt.Errorf("wgi: key columns not found")
	}

	// Year columns: "2003" or the bundle's "2003 [YR2003]" style, kept in
	// file order so the melt is deterministic.
	type yearCol struct{ col, year int }
	var years []yearCol
	for i, h := range rows[headerRow] {
		if y, ok := headerYear(h); ok && env.InRange(y) {
			years = append(years, yearCol{col: i, year: y})
		}
	}

	b := newBuilder(env, "wgi", "cc_est", "rule_of_law")
	type pair struct{ cc, rl float64 }
	cells := make(map[int64]*pair)
	var order []int64

	for _, row := range rows[headerRow+1:] {
		ind := strings.TrimSpace(cell(row, indCol))
		if ind != wgiCorruption && ind != wgiRuleOfLaw {
			continue
		}
		code := strings.TrimSpace(cell(row, codeCol))
		matched := false
		for _, yc := range years {
			v, ok := parseFloat(cell(row, yc.col))
			if !ok {
				continue
			}
			ccode, ok := env.Res.Resolve(countries.Alpha3, code, yc.year)
			if !ok {
				continue
			}
			matched = true
			key := int64(ccode)<<16 | int64(uint16(yc.year))
			p, ok := cells[key]
			if !ok {
				p = &pair{cc: math.NaN(), rl: math.NaN()}
				cells[key] = p
				order = append(order, key)
			}
			if ind == wgiCorruption {
				p.cc = v
			} else {
				p.rl = v
			}
		}
		if !matched {
			b.drop(true, code, 0)
		}
	}

	for _, key := range order {
		p := cells[key]
		b.add(int(key>>16), int(uint16(key)), p.cc, p.rl)
	}
	return b.table(), nil
}

// headerYear extracts the year from a wide-format column header.
func headerYear(h string) (int, bool) {
	h = strings.TrimSpace(h)
	if i := strings.IndexByte(h, ' '); i > 0 {
		h = h[:i]
	}
	if len(h) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(h)
	if err != nil || y < 1900 || y > 2100 {
		return 0, false
	}
	return y, true
}
