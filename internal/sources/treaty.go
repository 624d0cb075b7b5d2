package sources

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"tippanel/internal/countries"
)

// TreatyAction is one participant row of the trafficking protocol status
// table: when the state signed and when it consented to be bound. Year 0
// means the action has not happened.
type TreatyAction struct {
	Ccode    int
	Name     string
	SignYear int
	RatYear  int
	Kind     string // ratification, accession, acceptance, approval, succession
}

// Consent markers the treaty collection appends to dates.
var treatyKinds = map[string]string{
	"a":  "accession",
	"A":  "acceptance",
	"AA": "approval",
	"d":  "succession",
}

// ParseTreaty reads the cached protocol status page and extracts one action
// per resolvable participant. Names resolve through the name system with
// the consent year (the union-era "Serbia" row lands on the federation
// code, and the successor table carries it forward from the split).
func ParseTreaty(env Env) ([]TreatyAction, Stats, error) {
	f, err := os.Open(env.Path(FileTreaty))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("treaty: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("treaty: parse: %w", err)
	}

	var stats Stats
	var actions []TreatyAction
	for _, cells := range tableRows(doc) {
		if len(cells) < 3 {
			continue
		}
		sigYear, _, sigOK := parseTreatyDate(cells[1])
		ratYear, kind, ratOK := parseTreatyDate(cells[2])
		if !sigOK && !ratOK {
			continue // header or spacer row
		}
		name := strings.TrimRight(strings.TrimSpace(cells[0]), " 0123456789*")
		if name == "" {
			continue
		}

		// Resolve at the consent year so era and lineage come out right.
		year := ratYear
		if year == 0 {
			year = sigYear
		}
		ccode, ok := env.Res.Resolve(countries.Name, name, year)
		if !ok {
			stats.Dropped++
			stats.Unmapped++
			env.Log.Debug("unmapped participant dropped",
				slog.String("source", "treaty"),
				slog.String("name", name))
			continue
		}
		if kind == "" && ratYear != 0 {
			kind = "ratification"
		}
		actions = append(actions, TreatyAction{
			Ccode:    ccode,
			Name:     name,
			SignYear: sigYear,
			RatYear:  ratYear,
			Kind:     kind,
		})
		stats.Rows++
	}

	env.Log.Info("source cleaned",
		slog.String("source", "treaty"),
		slog.Int("rows", stats.Rows),
		slog.Int("dropped", stats.Dropped),
		slog.Int("unmapped", stats.Unmapped))
	return actions, stats, nil
}

// tableRows walks the document and returns the cell texts of every table
// row, whitespace collapsed.
func tableRows(doc *html.Node) [][]string {
	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.Join(strings.Fields(nodeText(c)), " "))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
		sb.WriteByte(' ')
	}
	return sb.String()
}

// parseTreatyDate reads a status-table date cell: "12 Dec 2000", possibly
// with a consent marker ("23 Oct 2006 d") or a footnote number appended.
func parseTreatyDate(s string) (year int, kind string, ok bool) {
	fields := strings.Fields(s)
	for len(fields) > 3 {
		last := fields[len(fields)-1]
		if k, known := treatyKinds[last]; known {
			kind = k
			fields = fields[:len(fields)-1]
			continue
		}
		if len(last) <= 2 && isDigits(last) {
			fields = fields[:len(fields)-1]
			continue
		}
		break
	}
	if len(fields) != 3 {
		return 0, "", false
	}
	t, err := time.Parse("2 Jan 2006", strings.Join(fields, " "))
	if err != nil {
		return 0, "", false
	}
	return t.Year(), kind, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
