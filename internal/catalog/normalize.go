package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// suffixWords are generic trailing terms that vary freely between how
// requesters name an entry and how the catalog titles it. They are stripped
// during normalization so suffix variance cannot defeat matching.
var suffixWords = map[string]struct{}{
	"service":  {},
	"request":  {},
	"form":     {},
	"page":     {},
	"entry":    {},
	"item":     {},
	"offering": {},
	"catalog":  {},
}

var foldCaser = cases.Fold()

// NormalizeName canonicalizes an entry name for comparison: Unicode NFKC,
// case folding, whitespace collapsing, and stripping of trailing suffix words.
func NormalizeName(name string) string {
	name = foldCaser.String(norm.NFKC.String(name))
	fields := strings.Fields(name)

	for len(fields) > 1 {
		last := strings.Trim(fields[len(fields)-1], ".,;:!?")
		if _, ok := suffixWords[last]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}
