// Package tokenizer splits normalized text into word tokens for phrase
// matching. Unlike a general-purpose tokenizer it never breaks hyphen-joined
// compounds ("non-small"), keeps inner periods and apostrophes ("e.g",
// "o'brien"), and emits a possessive "'s" as its own token.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Possessive is the token emitted for a trailing 's.
const Possessive = "'s"

// Token is a single word and where it sits in the source text. Start and End
// are byte offsets; Position is the token index.
type Token struct {
	Text     string
	Position int
	Start    int
	End      int
}

// Tokenize breaks text into tokens. Punctuation is dropped.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	start := -1
	emit := func(from, to int) {
		tokens = append(tokens, Token{
			Text:     text[from:to],
			Position: len(tokens),
			Start:    from,
			End:      to,
		})
	}
	flush := func(at int) {
		if start >= 0 {
			emit(start, at)
			start = -1
		}
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
			i += size
		case r == '\'' && possessiveAt(text, i):
			flush(i)
			emit(i, i+2)
			i += 2
		case start >= 0 && isJoiner(r) && wordRuneAt(text, i+size):
			i += size
		default:
			flush(i)
			i += size
		}
	}
	flush(len(text))
	return tokens
}

// Texts returns the token strings.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// Key is the canonical lookup form of a phrase: tokens lower-cased and
// joined by single spaces, with a possessive attached to the word before it
// as the matcher scans it ("parkinson's").
func Key(text string) string {
	var b strings.Builder
	for _, t := range Tokenize(text) {
		if b.Len() > 0 && t.Text != Possessive {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return strings.ToLower(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isJoiner(r rune) bool {
	return r == '-' || r == '.' || r == '\''
}

func wordRuneAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isWordRune(r)
}

// possessiveAt reports whether text[i:] starts with 's followed by a
// non-word character or the end of text.
func possessiveAt(text string, i int) bool {
	if i+1 >= len(text) || (text[i+1] != 's' && text[i+1] != 'S') {
		return false
	}
	return !wordRuneAt(text, i+2)
}
