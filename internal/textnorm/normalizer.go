// Package textnorm implements the cleaning pipeline shared by lexicon terms
// and document text. Both sides must go through the same Normalizer or
// matching silently fails.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLemmaPasses = 4

// MaxAcronymLen is the longest single all-caps word still treated as a
// short form and left unlemmatized.
const MaxAcronymLen = 7

var (
	htmlTag      = regexp.MustCompile(`<[^<>]*>`)
	andOr        = regexp.MustCompile(`(?i)\band/or\b`)
	nonPrefix    = regexp.MustCompile(`(?i)\bnon-? `)
	disallowed   = regexp.MustCompile(`[^\p{L}\p{N}_\-./'() ]`)
	possessive   = regexp.MustCompile(`(?i)'s\b`)
	genomic      = regexp.MustCompile(`(?i)(?:Del|I|Dup)\w*\([\w.]+\)\([\w.]+\)`)
	parenGroup   = regexp.MustCompile(`\(([^()]*)\)`)
	punctFolding = strings.NewReplacer(
		"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-",
		"―", "-", "−", "-", "﹘", "-", "﹣", "-", "－", "-",
		"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
		"＇", "'", "“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"″", `"`,
	)
)

// Normalizer is safe for concurrent use. It captures the blacklisted terms
// at construction; build a new one after editing the blacklist.
type Normalizer struct {
	lem   Lemmatizer
	terms blacklist.Snapshot
}

// New returns a Normalizer. A nil lemmatizer disables lemmatization.
func New(lem Lemmatizer, bl blacklist.Snapshot) *Normalizer {
	if lem == nil {
		lem = Noop
	}
	return &Normalizer{lem: lem, terms: bl}
}

// Normalize runs the full pipeline. It is deterministic and idempotent.
func (n *Normalizer) Normalize(text string) string {
	text = collapse(text)
	text = htmlTag.ReplaceAllString(text, " ")
	text = collapse(foldUnicode(text))
	text = andOr.ReplaceAllString(text, "and")
	text = nonPrefix.ReplaceAllString(text, "non")
	text = disallowed.ReplaceAllString(text, "")
	text = possessive.ReplaceAllString(text, "")
	text = n.lemmatize(text)
	text = n.stripParentheticals(text)
	return collapse(text)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldUnicode maps dash and quote variants to ASCII, applies compatibility
// decomposition and drops combining marks so accented letters survive the
// ASCII allow-list as their base letter.
func foldUnicode(s string) string {
	s = punctFolding.Replace(s)
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// lemmatize lower-cases and lemmatizes every token. A short acronym keeps
// its case unless it sits in a run of two or more all-caps words, which is
// shouting ("MUSCULAR DYSTROPHIES") and normalizes like lower-case text.
func (n *Normalizer) lemmatize(text string) string {
	fields := strings.Fields(text)
	shouted := make([]bool, len(fields))
	for i := 0; i < len(fields); {
		j := i
		for j < len(fields) && allCaps(fields[j]) {
			j++
		}
		if j-i >= 2 {
			for k := i; k < j; k++ {
				shouted[k] = true
			}
		}
		i = max(j, i+1)
	}
	for i, f := range fields {
		fields[i] = n.lemmaToken(f, !shouted[i])
	}
	return strings.Join(fields, " ")
}

// allCaps reports whether tok is an all-caps word that can join a shouted
// run. Parenthesized tokens never do; "(CF)" glosses stay acronyms.
func allCaps(tok string) bool {
	if strings.ContainsAny(tok, "()") {
		return false
	}
	start, end := coreBounds(tok)
	return start < end && isUpper(tok[start:end])
}

// lemmaToken lower-cases and lemmatizes the alphanumeric core of tok,
// leaving surrounding punctuation in place. When keepAcronym is set a short
// acronym is returned unchanged.
func (n *Normalizer) lemmaToken(tok string, keepAcronym bool) string {
	start, end := coreBounds(tok)
	if start >= end {
		return tok
	}
	core := tok[start:end]
	if keepAcronym && utf8.RuneCountInString(core) <= MaxAcronymLen && IsAcronym(core, true) {
		return tok
	}
	core = strings.ToLower(core)
	if isAlpha(core) {
		core = n.lemma(core)
	}
	return tok[:start] + core + tok[end:]
}

// lemma applies the lemmatizer until it reaches a fixed point. A word whose
// lemma chain does not settle is left as is.
func (n *Normalizer) lemma(w string) string {
	cur := w
	for i := 0; i < maxLemmaPasses; i++ {
		next := strings.ToLower(n.lem.Lemma(cur))
		if next == "" || !isAlpha(next) {
			return cur
		}
		if next == cur {
			return cur
		}
		cur = next
	}
	if strings.ToLower(n.lem.Lemma(cur)) == cur {
		return cur
	}
	return w
}

func (n *Normalizer) stripParentheticals(text string) string {
	if genomic.MatchString(text) {
		return text
	}
	out := text
	for {
		next := parenGroup.ReplaceAllStringFunc(out, func(g string) string {
			if n.strippable(g[1 : len(g)-1]) {
				return " "
			}
			return g
		})
		if next == out {
			break
		}
		out = next
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

func (n *Normalizer) strippable(content string) bool {
	c := collapse(content)
	if c == "" {
		return false
	}
	if IsAcronym(c, true) || n.terms.ContainsTerm(c) {
		return true
	}
	for _, w := range strings.Fields(c) {
		if n.terms.ContainsTerm(strings.Trim(w, "-./'")) {
			return true
		}
	}
	return false
}

func coreBounds(tok string) (int, int) {
	start, end := 0, len(tok)
	for start < end {
		r, size := utf8.DecodeRuneInString(tok[start:])
		if isWordRune(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(tok[start:end])
		if isWordRune(r) {
			break
		}
		end -= size
	}
	return start, end
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !('a' <= s[i] && s[i] <= 'z') {
			return false
		}
	}
	return true
}
