// Package matcher finds lexicon phrases in normalized text with a single
// left-to-right, longest-match-first scan.
package matcher

import (
	"strings"

	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
)

// DefaultContextWindow is how many tokens of context are kept on each side
// of a hit.
const DefaultContextWindow = 10

// Dictionary is the part of a lexicon the matcher needs.
type Dictionary interface {
	Lookup(key string) (lexicon.Entry, bool)
	MaxPhraseLen() int
}

// Span is a half-open range of token positions.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Hit is one lexicon phrase found in a document.
type Hit struct {
	DocumentID  string              `json:"document_id"`
	PatternType lexicon.PatternType `json:"pattern_type"`
	MatchedText string              `json:"matched_text"`
	DiseaseID   string              `json:"disease_id,omitempty"`
	Span        Span                `json:"span"`
	Column      string              `json:"column,omitempty"`
	Context     string              `json:"context,omitempty"`
}

// Table maps document ids to their hits in text order.
type Table map[string][]Hit

// Len returns the total number of hits.
func (t Table) Len() int {
	n := 0
	for _, hits := range t {
		n += len(hits)
	}
	return n
}

// Merge appends every hit of other into t.
func (t Table) Merge(other Table) {
	for id, hits := range other {
		t[id] = append(t[id], hits...)
	}
}

// Matcher is safe for concurrent use as long as the dictionary is not
// mutated.
type Matcher struct {
	dict   Dictionary
	window int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithContextWindow sets the number of context tokens kept on each side of a
// hit. Zero disables context.
func WithContextWindow(n int) Option {
	return func(m *Matcher) {
		if n >= 0 {
			m.window = n
		}
	}
}

func New(dict Dictionary, opts ...Option) *Matcher {
	m := &Matcher{dict: dict, window: DefaultContextWindow}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match tokenizes text and scans it. text should already be normalized.
func (m *Matcher) Match(docID, text string) []Hit {
	return m.MatchTokens(docID, text, tokenizer.Tokenize(text))
}

// MatchTokens scans tokens produced from text. At every position the widest
// window that fits (bounded by the lexicon's longest phrase) is tried first
// and shrunk one token at a time; a hit consumes its tokens.
func (m *Matcher) MatchTokens(docID, text string, tokens []tokenizer.Token) []Hit {
	tokens = mergePossessives(text, tokens)
	if len(tokens) == 0 {
		return nil
	}
	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = strings.ToLower(t.Text)
	}

	maxLen := m.dict.MaxPhraseLen()
	if maxLen < 1 {
		maxLen = 1
	}
	var hits []Hit
	var key strings.Builder
	for i := 0; i < len(tokens); {
		n := min(len(tokens)-i, maxLen)
		matched := false
		for ; n > 0; n-- {
			key.Reset()
			for j := i; j < i+n; j++ {
				if j > i {
					key.WriteByte(' ')
				}
				key.WriteString(lower[j])
			}
			e, ok := m.dict.Lookup(key.String())
			if !ok {
				continue
			}
			hits = append(hits, Hit{
				DocumentID:  docID,
				PatternType: e.Type,
				MatchedText: text[tokens[i].Start:tokens[i+n-1].End],
				DiseaseID:   e.ID,
				Span:        Span{Start: i, End: i + n},
				Context:     m.context(text, tokens, i, i+n),
			})
			matched = true
			break
		}
		if matched {
			i += n
		} else {
			i++
		}
	}
	return hits
}

func (m *Matcher) context(text string, tokens []tokenizer.Token, start, end int) string {
	if m.window == 0 {
		return ""
	}
	from := max(0, start-m.window)
	to := min(len(tokens), end+m.window)
	return text[tokens[from].Start:tokens[to-1].End]
}

// mergePossessives folds a standalone "'s" token into the token before it,
// so "Parkinson 's" scans as "parkinson's". Positions are renumbered.
func mergePossessives(text string, tokens []tokenizer.Token) []tokenizer.Token {
	merged := false
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Text == tokenizer.Possessive {
			merged = true
			break
		}
	}
	if !merged {
		return tokens
	}
	out := make([]tokenizer.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Text == tokenizer.Possessive && len(out) > 0 {
			prev := &out[len(out)-1]
			prev.Text = prev.Text + tokenizer.Possessive
			prev.End = t.End
			continue
		}
		t.Position = len(out)
		out = append(out, t)
	}
	return out
}
