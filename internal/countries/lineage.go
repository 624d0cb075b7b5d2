package countries

import "strings"

// Lineages cover native codes whose meaning shifted as a state broke up or
// merged: a single label or legacy code stands for different canonical codes
// in different historical periods, so the mapping must look at the row's own
// name and year instead of a static entry.
//
// The Yugoslavia family is the live case in this panel's sources. The
// federation (SFR Yugoslavia, then FR Yugoslavia / Serbia and Montenegro)
// carries 345 through 2005; from the 2006 dissolution of the state union,
// Serbia is 340 and Montenegro 341. Legacy COW-coded files keep 345 for
// Serbia after 2006 and name-coded files reuse "Serbia" for state-union
// years, so both directions need the year to disambiguate.

const (
	codeYugoslavia = 345
	codeSerbia     = 340
	codeMontenegro = 341

	serbiaSplitYear = 2006
)

func knownLineage(id string) bool {
	return id == "serbia"
}

// resolveLineage returns the canonical code for a lineage member given the
// row's normalized name (or numeric code rendered as text) and year. A year
// of 0 resolves to the lineage's present-day continuation.
func resolveLineage(id, key string, year int) int {
	switch id {
	case "serbia":
		return resolveSerbia(key, year)
	}
	return Unmapped
}

func resolveSerbia(key string, year int) int {
	inUnion := year != 0 && year < serbiaSplitYear

	// "Montenegro" alone means the republic: the independent state from
	// 2006, the federation before that.
	if strings.Contains(key, "montenegro") && !strings.Contains(key, "serbia") {
		if inUnion {
			return codeYugoslavia
		}
		return codeMontenegro
	}

	// "Yugoslavia", "Serbia and Montenegro", "Serbia", or legacy code 345.
	if inUnion {
		return codeYugoslavia
	}
	return codeSerbia
}
