package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"tippanel/internal/countries"
)

// World Bank API indicators fetched for the panel.
const (
	WBIndicatorGDP = "NY.GDP.PCAP.KD" // GDP per capita, constant USD
	WBIndicatorPop = "SP.POP.TOTL"    // total population
)

// WBFile is the cache file name for an indicator's merged API pages.
func WBFile(indicator string) string {
	return "wb_" + indicator + ".json"
}

// wbEntry is one observation in the API's [metadata, entries] response.
type wbEntry struct {
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	ISO3  string   `json:"countryiso3code"`
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// CleanGDP reads the cached GDP per capita fetch.
func CleanGDP(env Env) (Table, error) {
	return cleanWorldBank(env, "wb_gdp", WBIndicatorGDP, "gdp_pc")
}

// CleanPopulation reads the cached population fetch.
func CleanPopulation(env Env) (Table, error) {
	return cleanWorldBank(env, "wb_pop", WBIndicatorPop, "pop")
}

func cleanWorldBank(env Env, name, indicator, col string) (Table, error) {
	raw, err := os.ReadFile(env.Path(WBFile(indicator)))
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", name, err)
	}

	var page []json.RawMessage
	if err := json.Unmarshal(raw, &page); err != nil {
		return Table{}, fmt.Errorf("%s: decode: %w", name, err)
	}
	if len(page) < 2 {
		return Table{}, fmt.Errorf("%s: response has no entry array", name)
	}
	var entries []wbEntry
	if err := json.Unmarshal(page[1], &entries); err != nil {
		return Table{}, fmt.Errorf("%s: decode entries: %w", name, err)
	}

	b := newBuilder(env, name, col)
	for _, e := range entries {
		year, ok := parseYear(e.Date)
		if !ok || !env.InRange(year) {
			continue
		}
		if e.Value == nil {
			continue
		}
		// Aggregates carry an empty iso3 or a regional pseudo-code; both
		// fall out in resolution.
		var ccode int
		if iso3 := strings.TrimSpace(e.ISO3); iso3 != "" {
			ccode, ok = env.Res.Resolve(countries.Alpha3, iso3, year)
		} else {
			ccode, ok = env.Res.Resolve(countries.Alpha2, e.Country.ID, year)
		}
		if !ok {
			b.drop(true, e.ISO3+e.Country.ID, year)
			continue
		}
		b.add(ccode, year, *e.Value)
	}
	return b.table(), nil
}
