package sources

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"tippanel/internal/countries"
)

const genderSheet = "Data"

// flfpIndicator is female labor-force participation (% of female population
// ages 15+, modeled ILO estimate).
const flfpIndicator = "SL.TLF.CACT.FE.ZS"

// CleanGender melts the gender-statistics workbook: the Data sheet is wide
// by year, one row per country and indicator. Only the female labor-force
// participation series is kept.
func CleanGender(env Env) (Table, error) {
	f, err := excelize.OpenFile(env.Path(FileGender))
	if err != nil {
		return Table{}, fmt.Errorf("gender: open: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(genderSheet)
	if err != nil {
		return Table{}, fmt.Errorf("gender: read sheet %s: %w", genderSheet, err)
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
		return Table{}, fmt.Errorf("gender: header row not found")
	}
	idx := headerIndex(rows[headerRow])
	codeCol, okCode := idx["country code"]
	indCol, okInd := idx["indicator code"]
	if !okCode || !okInd {
		return Table{}, fmt.Errorf("gender: key columns not found")
	}

	type yearCol struct{ col, year int }
	var years []yearCol
	for i, h := range rows[headerRow] {
		if y, ok := headerYear(h); ok && env.InRange(y) {
			years = append(years, yearCol{col: i, year: y})
		}
	}

	b := newBuilder(env, "gender", "flfp")
	for _, row := range rows[headerRow+1:] {
		if strings.TrimSpace(cell(row, indCol)) != flfpIndicator {
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
			b.add(ccode, yc.year, v)
		}
		if !matched {
			b.drop(true, code, 0)
		}
	}
	return b.table(), nil
}
