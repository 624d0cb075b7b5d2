package panel

import (
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tippanel/internal/countries"
	"tippanel/internal/sources"
)

// Step-function columns derived from the treaty events.
const (
	ColSigned   = "tip_signed"
	ColRatified = "tip_ratified"
)

// BinarizeTreaty turns the point-in-time treaty events into two boolean
// step functions on the panel: tip_signed and tip_ratified are 1 from the
// event year onward and 0 before (and everywhere for countries with no
// event). Successor states inherit the predecessor's event from their
// split year unless they have an event of their own.
func BinarizeTreaty(df dataframe.DataFrame, actions []sources.TreatyAction, res *countries.Resolver) (dataframe.DataFrame, error) {
	sign := eventYears(actions, func(a sources.TreatyAction) int { return a.SignYear })
	rat := eventYears(actions, func(a sources.TreatyAction) int { return a.RatYear })
	inheritSuccessors(sign, res)
	inheritSuccessors(rat, res)

	codes, years := keyColumns(df)
	signed := make([]int, len(codes))
	ratified := make([]int, len(codes))
	for i := range codes {
		if y, ok := sign[codes[i]]; ok && years[i] >= y {
			signed[i] = 1
		}
		if y, ok := rat[codes[i]]; ok && years[i] >= y {
			ratified[i] = 1
		}
	}

	df = df.Mutate(series.New(signed, series.Int, ColSigned))
	df = df.Mutate(series.New(ratified, series.Int, ColRatified))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("panel: binarize treaty: %w", df.Err)
	}
	return df, nil
}

// eventYears collapses the actions to the earliest event year per ccode.
func eventYears(actions []sources.TreatyAction, year func(sources.TreatyAction) int) map[int]int {
	out := make(map[int]int)
	for _, a := range actions {
		y := year(a)
		if y == 0 {
			continue
		}
		if cur, ok := out[a.Ccode]; !ok || y < cur {
			out[a.Ccode] = y
		}
	}
	return out
}

// inheritSuccessors propagates a predecessor's event year to its successor
// states. The inherited step starts no earlier than the split: FR
// Yugoslavia's 2001 ratification makes Serbia and Montenegro parties from
// 2006. A successor with its own event keeps it.
func inheritSuccessors(years map[int]int, res *countries.Resolver) {
	preds := make([]int, 0, len(years))
	for c := range years {
		preds = append(preds, c)
	}
	sort.Ints(preds)

	for _, p := range preds {
		for _, s := range res.Successors(p) {
			if _, own := years[s.Successor]; own {
				continue
			}
			years[s.Successor] = max(years[p], s.FromYear)
		}
	}
}
