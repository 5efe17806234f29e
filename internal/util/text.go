package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reQuotes = regexp.MustCompile(`["'` + "`" + `«»“”]`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// NormalizeName is the join key for product names across snapshots and
// history: case-folded, accents stripped, whitespace collapsed.
func NormalizeName(input string) string {
	s := cases.Fold().String(stripMarks(input))
	s = reQuotes.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// EqualNames compares two product names by their normalized form.
func EqualNames(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

func stripMarks(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, input)
	if err != nil {
		return input
	}
	return out
}

// Tokenize splits a normalized name into tokens longer than minLen runes.
func Tokenize(input string, minLen int) []string {
	norm := NormalizeName(input)
	parts := strings.FieldsFunc(norm, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '-' || r == '/' || r == '(' || r == ')'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) > minLen {
			out = append(out, p)
		}
	}
	return out
}
