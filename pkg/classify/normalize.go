// Package classify proposes canonical-field mappings for price-list
// columns. Scoring combines a static seed lexicon with learned
// header/field associations; the two scorers are independent and composed
// by taking the maximum, so learned evidence can only raise confidence.
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a header string for lexicon and association
// lookups: lowercase, diacritics stripped, separators and punctuation
// collapsed to single spaces. "№" survives normalization because several
// real price lists use it as the entire unit-number header.
func Normalize(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	if s == "" {
		return ""
	}

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '№':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
