package countries

import (
	"fmt"
	"strconv"
)

// Succession records that a successor state inherits treaty facts from a
// predecessor code starting in a given year. Used by the ratification
// binarizer: FR Yugoslavia's 2001 ratification counts for Serbia and
// Montenegro from the 2006 split onward unless the treaty page carries an
// explicit succession row of its own.
type Succession struct {
	Predecessor int
	Successor   int
	FromYear    int
}

// Successors returns the succession entries for a predecessor code, or nil.
func (r *Resolver) Successors(code int) []Succession {
	return r.successors[code]
}

func (r *Resolver) loadSuccessions(path string) error {
	rows, err := readTable(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != 3 {
			return fmt.Errorf("countries: %s: want 3 fields, got %d in %q", path, len(row), row)
		}
		pred, err := strconv.Atoi(row[0])
		if err != nil {
			return fmt.Errorf("countries: %s: bad predecessor %q: %w", path, row[0], err)
		}
		succ, err := strconv.Atoi(row[1])
		if err != nil {
			return fmt.Errorf("countries: %s: bad successor %q: %w", path, row[1], err)
		}
		from, err := strconv.Atoi(row[2])
		if err != nil {
			return fmt.Errorf("countries: %s: bad year %q: %w", path, row[2], err)
		}
		if _, ok := r.states[succ]; !ok {
			return fmt.Errorf("countries: %s: unknown successor state %d", path, succ)
		}
		r.successors[pred] = append(r.successors[pred], Succession{
			Predecessor: pred,
			Successor:   succ,
			FromYear:    from,
		})
	}
	return nil
}
