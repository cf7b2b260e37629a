// Package lexicon builds and serves the phrase dictionary used by the
// matcher: normalized disease names and synonyms keyed to catalog ids.
// A Lexicon is mutable only while it is being built and patched; after that
// it is shared read-only across goroutines without locking.
package lexicon

import (
	"sort"
	"strings"
)

// Lexicon maps normalized terms to catalog ids and keeps the per-id data
// the resolver needs.
type Lexicon struct {
	terms        map[string]Entry
	byID         map[string][]string
	maxPhraseLen int

	ids       []string
	names     map[string]string
	display   map[string]string
	synonyms  map[string][]string
	nameIndex map[string][]string
}

func newLexicon() *Lexicon {
	return &Lexicon{
		terms:        make(map[string]Entry),
		byID:         make(map[string][]string),
		maxPhraseLen: 1,
		names:        make(map[string]string),
		display:      make(map[string]string),
		synonyms:     make(map[string][]string),
		nameIndex:    make(map[string][]string),
	}
}

// Lookup finds the entry for a canonical phrase key (lower-case tokens joined
// by single spaces).
func (l *Lexicon) Lookup(key string) (Entry, bool) {
	e, ok := l.terms[key]
	return e, ok
}

// MaxPhraseLen is the token count of the longest term. Always at least 1.
func (l *Lexicon) MaxPhraseLen() int {
	return l.maxPhraseLen
}

// Len is the number of distinct terms.
func (l *Lexicon) Len() int {
	return len(l.terms)
}

// CountByType returns how many terms are names and how many synonyms.
func (l *Lexicon) CountByType() (names, synonyms int) {
	for _, e := range l.terms {
		if e.Type == Name {
			names++
		} else {
			synonyms++
		}
	}
	return names, synonyms
}

// Terms returns the terms that map to id, most specific first.
func (l *Lexicon) Terms(id string) []string {
	return append([]string(nil), l.byID[id]...)
}

// HasID reports whether id was present in the catalog.
func (l *Lexicon) HasID(id string) bool {
	_, ok := l.names[id]
	return ok
}

// IDs returns every catalog id, sorted.
func (l *Lexicon) IDs() []string {
	return append([]string(nil), l.ids...)
}

// CanonicalName is the normalized name of id.
func (l *Lexicon) CanonicalName(id string) string {
	return l.names[id]
}

// DisplayName is the catalog's own spelling of the name of id.
func (l *Lexicon) DisplayName(id string) string {
	return l.display[id]
}

// Synonyms returns every normalized synonym of id, including ones that were
// too short or ambiguous to become lexicon terms.
func (l *Lexicon) Synonyms(id string) []string {
	return append([]string(nil), l.synonyms[id]...)
}

// IDsByName returns the ids whose normalized canonical name has the given
// phrase key.
func (l *Lexicon) IDsByName(key string) []string {
	return append([]string(nil), l.nameIndex[key]...)
}

// ForEachSynonym calls fn for every (id, synonym) pair in id order until fn
// returns false.
func (l *Lexicon) ForEachSynonym(fn func(id, synonym string) bool) {
	for _, id := range l.ids {
		for _, s := range l.synonyms[id] {
			if !fn(id, s) {
				return
			}
		}
	}
}

// reindex rebuilds byID and maxPhraseLen from terms.
func (l *Lexicon) reindex() {
	l.byID = make(map[string][]string, len(l.names))
	l.maxPhraseLen = 1
	for term, e := range l.terms {
		l.byID[e.ID] = append(l.byID[e.ID], term)
		if n := tokenCount(term); n > l.maxPhraseLen {
			l.maxPhraseLen = n
		}
	}
	for _, list := range l.byID {
		sortTerms(list)
	}
	for _, ids := range l.nameIndex {
		sort.Strings(ids)
	}
	l.ids = l.ids[:0]
	for id := range l.names {
		l.ids = append(l.ids, id)
	}
	sort.Strings(l.ids)
}

// sortTerms orders by descending token count, then descending length, then
// lexicographically.
func sortTerms(terms []string) {
	sort.Slice(terms, func(i, j int) bool {
		ti, tj := tokenCount(terms[i]), tokenCount(terms[j])
		if ti != tj {
			return ti > tj
		}
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
}

func tokenCount(key string) int {
	return strings.Count(key, " ") + 1
}
