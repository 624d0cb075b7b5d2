package countries

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

//go:embed tables/*.csv
var tablesFS embed.FS

// System identifies the native coding system a raw value belongs to.
type System string

const (
	Alpha2  System = "alpha2"
	Alpha3  System = "alpha3"
	Numeric System = "numeric"
	Name    System = "name"
)

// Unmapped is the sentinel returned for native codes with no canonical
// equivalent. Callers drop such rows.
const Unmapped = 0

// State is one row of the embedded state list: a canonical code with the
// years it denotes an independent state.
type State struct {
	Code      int
	Name      string
	StartYear int
	EndYear   int // 0 = still in the system
}

// ValidIn reports whether the state existed in the given year. Year 0 skips
// the check (callers without a usable year column).
func (s State) ValidIn(year int) bool {
	if year == 0 {
		return true
	}
	if year < s.StartYear {
		return false
	}
	return s.EndYear == 0 || year <= s.EndYear
}

// target is the parsed right-hand side of an override row: a canonical
// code, a deliberate drop, or a lineage id.
type target struct {
	code    int
	drop    bool
	lineage string
}

// Resolver holds the loaded reference and override tables.
type Resolver struct {
	states map[int]State

	alpha2 map[string]int
	alpha3 map[string]int
	names  map[string]int

	overrides map[System]map[string]target

	successors map[int][]Succession
}

// Load parses the embedded tables. The tables are trusted build-time data,
// so malformed rows are an error, not a warning.
func Load() (*Resolver, error) {
	r := &Resolver{
		states:     make(map[int]State),
		alpha2:     make(map[string]int),
		alpha3:     make(map[string]int),
		names:      make(map[string]int),
		overrides:  make(map[System]map[string]target),
		successors: make(map[int][]Succession),
	}
	for _, sys := range []System{Alpha2, Alpha3, Numeric, Name} {
		r.overrides[sys] = make(map[string]target)
	}

	if err := r.loadStates("tables/statelist.csv"); err != nil {
		return nil, err
	}
	if err := r.loadConcordance("tables/alpha2.csv", r.alpha2); err != nil {
		return nil, err
	}
	if err := r.loadConcordance("tables/alpha3.csv", r.alpha3); err != nil {
		return nil, err
	}
	if err := r.loadOverrides("tables/alpha2_overrides.csv", Alpha2, false); err != nil {
		return nil, err
	}
	if err := r.loadOverrides("tables/alpha3_overrides.csv", Alpha3, false); err != nil {
		return nil, err
	}
	if err := r.loadOverrides("tables/numeric_overrides.csv", Numeric, false); err != nil {
		return nil, err
	}
	if err := r.loadOverrides("tables/name_aliases.csv", Name, true); err != nil {
		return nil, err
	}
	if err := r.loadSuccessions("tables/successions.csv"); err != nil {
		return nil, err
	}

	return r, nil
}

// Resolve maps a native code in the given system to a canonical country
// code. The year is the row's own year (an observation year or event year)
// and is consulted for lineage entries and for state-era validity; pass 0
// when a source has no usable year.
//
// Lookup order is fixed: the manual override table for the system wins over
// the automatic reference table. Returns (Unmapped, false) when the code is
// deliberately dropped, unknown, or maps to a state that did not exist in
// the given year.
func (r *Resolver) Resolve(sys System, code string, year int) (int, bool) {
	key := code
	switch sys {
	case Alpha2, Alpha3:
		key = strings.ToUpper(strings.TrimSpace(code))
	case Name:
		key = NormalizeName(code)
	case Numeric:
		key = strings.TrimSpace(code)
	}
	if key == "" {
		return Unmapped, false
	}

	if t, ok := r.overrides[sys][key]; ok {
		return r.applyTarget(t, key, year)
	}

	switch sys {
	case Alpha2:
		if c, ok := r.alpha2[key]; ok {
			return r.checkEra(c, year)
		}
	case Alpha3:
		if c, ok := r.alpha3[key]; ok {
			return r.checkEra(c, year)
		}
	case Numeric:
		n, err := strconv.Atoi(key)
		if err != nil {
			return Unmapped, false
		}
		if _, ok := r.states[n]; ok {
			return r.checkEra(n, year)
		}
	case Name:
		if c, ok := r.names[key]; ok {
			return r.checkEra(c, year)
		}
	}

	return Unmapped, false
}

// ResolveNumeric is Resolve for sources that carry the legacy numeric code
// as an integer column.
func (r *Resolver) ResolveNumeric(code, year int) (int, bool) {
	return r.Resolve(Numeric, strconv.Itoa(code), year)
}

// State returns the state-list entry for a canonical code.
func (r *Resolver) State(code int) (State, bool) {
	s, ok := r.states[code]
	return s, ok
}

// ValidIn reports whether the canonical code denotes a state that existed
// in the given year.
func (r *Resolver) ValidIn(code, year int) bool {
	s, ok := r.states[code]
	return ok && s.ValidIn(year)
}

func (r *Resolver) applyTarget(t target, key string, year int) (int, bool) {
	switch {
	case t.drop:
		return Unmapped, false
	case t.lineage != "":
		c := resolveLineage(t.lineage, key, year)
		if c == Unmapped {
			return Unmapped, false
		}
		return r.checkEra(c, year)
	default:
		return r.checkEra(t.code, year)
	}
}

func (r *Resolver) checkEra(code, year int) (int, bool) {
	s, ok := r.states[code]
	if !ok {
		return Unmapped, false
	}
	if !s.ValidIn(year) {
		return Unmapped, false
	}
	return code, true
}

func (r *Resolver) loadStates(path string) error {
	rows, err := readTable(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != 4 {
			return fmt.Errorf("countries: %s: want 4 fields, got %d in %q", path, len(row), row)
		}
		code, err := strconv.Atoi(row[0])
		if err != nil {
			return fmt.Errorf("countries: %s: bad code %q: %w", path, row[0], err)
		}
		start, err := strconv.Atoi(row[2])
		if err != nil {
			return fmt.Errorf("countries: %s: bad start year %q: %w", path, row[2], err)
		}
		end := 0
		if row[3] != "" {
			if end, err = strconv.Atoi(row[3]); err != nil {
				return fmt.Errorf("countries: %s: bad end year %q: %w", path, row[3], err)
			}
		}
		st := State{Code: code, Name: row[1], StartYear: start, EndYear: end}
		r.states[code] = st
		// Automatic name table: the state's own name, newest era winning
		// when lineages share a spelling (overrides handle those anyway).
		r.names[NormalizeName(st.Name)] = code
	}
	return nil
}

func (r *Resolver) loadConcordance(path string, into map[string]int) error {
	rows, err := readTable(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != 2 {
			return fmt.Errorf("countries: %s: want 2 fields, got %d in %q", path, len(row), row)
		}
		code, err := strconv.Atoi(row[1])
		if err != nil {
			return fmt.Errorf("countries: %s: bad code %q: %w", path, row[1], err)
		}
		if _, ok := r.states[code]; !ok {
			return fmt.Errorf("countries: %s: %q maps to unknown state %d", path, row[0], code)
		}
		into[strings.ToUpper(row[0])] = code
	}
	return nil
}

func (r *Resolver) loadOverrides(path string, sys System, normalize bool) error {
	rows, err := readTable(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != 2 {
			return fmt.Errorf("countries: %s: want 2 fields, got %d in %q", path, len(row), row)
		}
		key := strings.ToUpper(row[0])
		if normalize {
			key = NormalizeName(row[0])
		}
		t, err := parseTarget(row[1])
		if err != nil {
			return fmt.Errorf("countries: %s: %q: %w", path, row[0], err)
		}
		if t.code != 0 {
			if _, ok := r.states[t.code]; !ok {
				return fmt.Errorf("countries: %s: %q maps to unknown state %d", path, row[0], t.code)
			}
		}
		r.overrides[sys][key] = t
	}
	return nil
}

func parseTarget(raw string) (target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "drop":
		return target{drop: true}, nil
	case strings.HasPrefix(raw, "lineage:"):
		id := strings.TrimPrefix(raw, "lineage:")
		if !knownLineage(id) {
			return target{}, fmt.Errorf("unknown lineage %q", id)
		}
		return target{lineage: id}, nil
	default:
		code, err := strconv.Atoi(raw)
		if err != nil {
			return target{}, fmt.Errorf("bad target %q: %w", raw, err)
		}
		return target{code: code}, nil
	}
}

func readTable(path string) ([][]string, error) {
	f, err := tablesFS.Open(path)
	if err != nil {
		return nil, fmt.Errorf("countries: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var rows [][]string
	header := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("countries: read %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
