package sources

import (
	"fmt"
	"strings"

	"tippanel/internal/countries"
)

// Criminalization levels: 0 none, 1 partial, 2 full. The coding stops in
// 2011; the panel stage forward-fills later years from the last observed
// level.
const CrimMaxLevel = 2

// CrimLabel maps a criminalization level to its ordered label.
func CrimLabel(level int) string {
	switch level {
	case 0:
		return "none"
	case 1:
		return "partial"
	case 2:
		return "full"
	}
	return ""
}

// CleanCriminalization reads the criminalization coding, keyed by alpha-2
// codes.
func CleanCriminalization(env Env) (Table, error) {
	rows, err := readCSVFile(env.Path(FileCriminalization))
	if err != nil {
		return Table{}, fmt.Errorf("criminalization: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("criminalization: empty file")
	}
	idx := headerIndex(rows[0])
	for _, c := range []string{"alpha2", "year", "level"} {
		if _, ok := idx[c]; !ok {
			return Table{}, fmt.Errorf("criminalization: missing column %q", c)
		}
	}

	b := newBuilder(env, "criminalization", "crim_level")
	for _, row := range rows[1:] {
		code := strings.TrimSpace(cell(row, idx["alpha2"]))
		year, ok := parseYear(cell(row, idx["year"]))
		if !ok || !env.InRange(year) {
			b.drop(false, code, 0)
			continue
		}
		level, ok := parseFloat(cell(row, idx["level"]))
		if !ok || level != float64(int(level)) || level < 0 || level > CrimMaxLevel {
			b.drop(false, code, year)
			continue
		}
		ccode, ok := env.Res.Resolve(countries.Alpha2, code, year)
		if !ok {
			b.drop(true, code, year)
			continue
		}
		b.add(ccode, year, level)
	}
	return b.table(), nil
}
