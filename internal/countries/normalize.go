package countries

import "strings"

var nameReplacer = strings.NewReplacer(
	"&", " and ",
	"(", " ",
	")", " ",
	",", " ",
	".", " ",
	"'", " ",
	"’", " ", // curly apostrophe, common in scraped pages
	"-", " ",
	"á", "a",
	"ã", "a",
	"ç", "c",
	"é", "e",
	"í", "i",
	"ñ", "n",
	"ô", "o",
	"ú", "u",
	"ü", "u",
)

// NormalizeName canonicalizes a free-text country name for table lookup:
// lower case, punctuation and common accents folded, whitespace collapsed.
// Spelling variants beyond that are handled by the name alias table.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nameReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
