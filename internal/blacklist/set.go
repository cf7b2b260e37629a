// Package blacklist holds the two editable false-positive lists: subjects
// (whole documents or communities to ignore) and terms (phrases and acronyms
// that must never count as a disease mention). Matching is case-insensitive.
package blacklist

import (
	"maps"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// Kind selects one of the two lists.
type Kind string

const (
	Subjects Kind = "subjects"
	Terms    Kind = "terms"
)

// ParseKind validates a list name coming from user input.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case Subjects:
		return Subjects, nil
	case Terms:
		return Terms, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, "unknown blacklist %q (want subjects or terms)", s)
}

// Set is a mutable, concurrency-safe pair of lists. Readers on the hot path
// take a Snapshot instead of locking per lookup.
type Set struct {
	mu       sync.RWMutex
	subjects map[string]struct{}
	terms    map[string]struct{}
	version  uint64
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		subjects: make(map[string]struct{}),
		terms:    make(map[string]struct{}),
	}
}

// NewWithDefaults returns a Set seeded with the curated default lists.
func NewWithDefaults() *Set {
	s := New()
	subjects, terms := Defaults()
	s.Add(Subjects, subjects...)
	s.Add(Terms, terms...)
	return s
}

func (s *Set) list(kind Kind) map[string]struct{} {
	if kind == Subjects {
		return s.subjects
	}
	return s.terms
}

// Add inserts words into the named list and reports how many were new.
func (s *Set) Add(kind Kind, words ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.list(kind)
	added := 0
	for _, w := range words {
		key := fold(w)
		if key == "" {
			continue
		}
		if _, ok := m[key]; !ok {
			m[key] = struct{}{}
			added++
		}
	}
	if added > 0 {
		s.version++
	}
	return added
}

// Remove deletes words from the named list and reports how many existed.
func (s *Set) Remove(kind Kind, words ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.list(kind)
	removed := 0
	for _, w := range words {
		key := fold(w)
		if _, ok := m[key]; ok {
			delete(m, key)
			removed++
		}
	}
	if removed > 0 {
		s.version++
	}
	return removed
}

// Clear empties the named list.
func (s *Set) Clear(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == Subjects {
		s.subjects = make(map[string]struct{})
	} else {
		s.terms = make(map[string]struct{})
	}
	s.version++
}

// Replace swaps both lists at once, as done on file reload. The version only
// moves when the contents differ, so reloading a file the Set just saved is
// a no-op.
func (s *Set) Replace(subjects, terms []string) {
	next := New()
	next.Add(Subjects, subjects...)
	next.Add(Terms, terms...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if maps.Equal(s.subjects, next.subjects) && maps.Equal(s.terms, next.terms) {
		return
	}
	s.subjects = next.subjects
	s.terms = next.terms
	s.version++
}

// Contains reports whether word is in the named list.
func (s *Set) Contains(kind Kind, word string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.list(kind)[fold(word)]
	return ok
}

// List returns the named list sorted.
func (s *Set) List(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.list(kind))
}

// Version increases on every mutation.
func (s *Set) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns an immutable copy of both lists.
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		subjects: copySet(s.subjects),
		terms:    copySet(s.terms),
		Version:  s.version,
	}
}

// Snapshot is a read-only view of a Set. The zero value is an empty
// blacklist and is safe to use.
type Snapshot struct {
	subjects map[string]struct{}
	terms    map[string]struct{}
	Version  uint64
}

// NewSnapshot builds a Snapshot directly from word lists.
func NewSnapshot(subjects, terms []string) Snapshot {
	s := New()
	s.Add(Subjects, subjects...)
	s.Add(Terms, terms...)
	return s.Snapshot()
}

func (s Snapshot) ContainsSubject(word string) bool {
	_, ok := s.subjects[fold(word)]
	return ok
}

func (s Snapshot) ContainsTerm(word string) bool {
	_, ok := s.terms[fold(word)]
	return ok
}

func (s Snapshot) Len(kind Kind) int {
	if kind == Subjects {
		return len(s.subjects)
	}
	return len(s.terms)
}

func (s Snapshot) Terms() []string    { return sortedKeys(s.terms) }
func (s Snapshot) Subjects() []string { return sortedKeys(s.subjects) }

func fold(w string) string {
	return strings.Join(strings.Fields(strings.ToLower(w)), " ")
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
