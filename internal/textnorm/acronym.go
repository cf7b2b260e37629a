package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	acronymSplit  = regexp.MustCompile(`[-/]`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}_]`)
	upperAnywhere = regexp.MustCompile(`\p{Lu}`)
	upperTrailing = regexp.MustCompile(`\p{Lu}[^\p{L}]*$`)
)

// IsAcronym reports whether every '-' or '/' delimited part of text looks like
// a short form. In strict mode a part must be fully upper-case. In mixed mode
// an upper-case letter past the first position ("mTOR") or a trailing
// upper-case run ("ABCA4") is enough. Periods are ignored; any other
// punctuation disqualifies the part.
func IsAcronym(text string, mixed bool) bool {
	for _, part := range acronymSplit.Split(text, -1) {
		if part == "" {
			return false
		}
		if nonWord.MatchString(strings.ReplaceAll(part, ".", "")) {
			return false
		}
		if mixed {
			_, first := utf8.DecodeRuneInString(part)
			if !upperAnywhere.MatchString(part[first:]) && !upperTrailing.MatchString(part) {
				return false
			}
		} else if !isUpper(part) {
			return false
		}
	}
	return true
}

// isUpper is true when s has at least one cased letter and none are lower.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
