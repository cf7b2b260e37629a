// Package resolver maps matcher hits and free-text queries back to canonical
// disease ids.
package resolver

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// retryBudget is the number of lookups Autosearch makes before giving up
// and returning the query as literal search text.
const retryBudget = 2

// Match is one disease a hit or query resolved to.
type Match struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolved is the per-document output of ResolveTable. Both lists are sorted
// and free of duplicates.
type Resolved struct {
	DiseaseIDs   []string `json:"disease_ids"`
	DiseaseNames []string `json:"disease_names"`
}

// Outcome says how an autosearch query was answered.
type Outcome string

const (
	OutcomeID       Outcome = "id"
	OutcomeTerm     Outcome = "term"
	OutcomeFallback Outcome = "fallback"
)

// Result is the full answer to an autosearch query.
type Result struct {
	Query   string   `json:"query"`
	ID      string   `json:"id,omitempty"`
	Terms   []string `json:"terms"`
	Outcome Outcome  `json:"outcome"`
}

type synonymKey struct {
	id  string
	key string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	lex    *lexicon.Lexicon
	norm   *textnorm.Normalizer
	scheme IDScheme
	logger *slog.Logger

	synonyms []synonymKey
	memoMu   sync.RWMutex
	memo     map[string][]string
	group    singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNormalizer makes Autosearch also try the normalized form of a query.
// It should be the normalizer the lexicon was built with.
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(r *Resolver) { r.norm = n }
}

func WithIDScheme(s IDScheme) Option {
	return func(r *Resolver) { r.scheme = s }
}

// WithRand fixes the source used by the Random helpers.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Resolver) { r.rnd = rnd }
}

func New(lex *lexicon.Lexicon, opts ...Option) *Resolver {
	r := &Resolver{
		lex:    lex,
		scheme: DefaultIDScheme(),
		logger: slog.Default().With("component", "resolver"),
		memo:   make(map[string][]string),
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	lex.ForEachSynonym(func(id, syn string) bool {
		if key := tokenizer.Key(syn); key != "" {
			r.synonyms = append(r.synonyms, synonymKey{id: id, key: key})
		}
		return true
	})
	return r
}

// Scheme returns the id scheme queries are parsed with.
func (r *Resolver) Scheme() IDScheme {
	return r.scheme
}

// ResolveHit returns the diseases a hit belongs to. A Name hit must equal a
// canonical name exactly; a Synonym hit only has to occur inside one of a
// disease's synonyms.
func (r *Resolver) ResolveHit(hit matcher.Hit) []Match {
	key := tokenizer.Key(hit.MatchedText)
	if key == "" {
		return nil
	}
	var ids []string
	switch hit.PatternType {
	case lexicon.Name:
		ids = r.lex.IDsByName(key)
	case lexicon.Synonym:
		ids = r.synonymIDs(key)
	}
	out := make([]Match, 0, len(ids))
	for _, id := range ids {
		out = append(out, Match{ID: id, Name: r.lex.DisplayName(id)})
	}
	return out
}

// synonymIDs scans every synonym for key. Results are memoized since the
// same phrase recurs across documents.
func (r *Resolver) synonymIDs(key string) []string {
	r.memoMu.RLock()
	ids, ok := r.memo[key]
	r.memoMu.RUnlock()
	if ok {
		return ids
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		seen := make(map[string]struct{})
		var found []string
		for _, s := range r.synonyms {
			if _, dup := seen[s.id]; dup {
				continue
			}
			if strings.Contains(s.key, key) {
				seen[s.id] = struct{}{}
				found = append(found, s.id)
			}
		}
		sort.Strings(found)
		r.memoMu.Lock()
		r.memo[key] = found
		r.memoMu.Unlock()
		return found, nil
	})
	return v.([]string)
}

// ResolveHits merges the diseases of hits. ok is false when none resolve.
func (r *Resolver) ResolveHits(hits []matcher.Hit) (res Resolved, ok bool) {
	ids := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, h := range hits {
		for _, m := range r.ResolveHit(h) {
			ids[m.ID] = struct{}{}
			names[m.Name] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return Resolved{}, false
	}
	return Resolved{DiseaseIDs: sortedSet(ids), DiseaseNames: sortedSet(names)}, true
}

// ResolveTable resolves every hit of every document.
func (r *Resolver) ResolveTable(table matcher.Table) map[string]Resolved {
	out := make(map[string]Resolved, len(table))
	for docID, hits := range table {
		if res, ok := r.ResolveHits(hits); ok {
			out[docID] = res
		}
	}
	return out
}

// Autosearch returns every lexicon term of the disease a query names, most
// specific first. See Lookup.
func (r *Resolver) Autosearch(term string) ([]string, error) {
	res, err := r.Lookup(term)
	if err != nil {
		return nil, err
	}
	return res.Terms, nil
}

// Lookup answers a query given as a canonical id ("GARD:0006233"), a bare
// number ("6233"), or a disease name or synonym. Unresolved text is retried
// once with hyphens turned into spaces and possessives removed; after that the
// trimmed query comes back, as typed, as the only term. A number too wide for the id
// scheme fails with ErrInvalidID and an id missing from the catalog with
// ErrNotFound.
func (r *Resolver) Lookup(term string) (Result, error) {
	query := strings.ToLower(strings.TrimSpace(term))
	res := Result{Query: term}
	cur := query
	for attempt := 0; attempt < retryBudget; attempt++ {
		id, isID, err := r.scheme.Parse(cur)
		if err != nil {
			return res, err
		}
		if isID {
			terms := r.lex.Terms(id)
			if len(terms) == 0 {
				return res, apperrors.Newf(apperrors.ErrNotFound, "no lexicon terms for %s", id)
			}
			res.ID, res.Terms, res.Outcome = id, terms, OutcomeID
			return res, nil
		}
		if id, ok := r.lookupTerm(cur); ok {
			res.ID, res.Terms, res.Outcome = id, r.lex.Terms(id), OutcomeTerm
			return res, nil
		}
		cur = strings.ReplaceAll(cur, "-", " ")
		cur = strings.ReplaceAll(cur, "'s", "")
	}
	literal := strings.TrimSpace(term)
	r.logger.Debug("autosearch fell back to literal text", "term", literal)
	res.Terms, res.Outcome = []string{literal}, OutcomeFallback
	return res, nil
}

func (r *Resolver) lookupTerm(term string) (string, bool) {
	keys := []string{tokenizer.Key(term)}
	if r.norm != nil {
		keys = append(keys, tokenizer.Key(r.norm.Normalize(term)))
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if e, ok := r.lex.Lookup(key); ok {
			return e.ID, true
		}
		if ids := r.lex.IDsByName(key); len(ids) > 0 && len(r.lex.Terms(ids[0])) > 0 {
			return ids[0], true
		}
	}
	return "", false
}

// RandomID returns a random catalog id that has at least one term.
func (r *Resolver) RandomID() (string, error) {
	ids := r.lex.IDs()
	r.rndMu.Lock()
	r.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	r.rndMu.Unlock()
	for _, id := range ids {
		if len(r.lex.Terms(id)) > 0 {
			return id, nil
		}
	}
	return "", apperrors.New(apperrors.ErrNotFound, "lexicon is empty")
}

// RandomDiseaseTerms returns the term list of a random disease.
func (r *Resolver) RandomDiseaseTerms() ([]string, error) {
	id, err := r.RandomID()
	if err != nil {
		return nil, err
	}
	return r.lex.Terms(id), nil
}

// RandomDisease returns one random term.
func (r *Resolver) RandomDisease() (string, error) {
	terms, err := r.RandomDiseaseTerms()
	if err != nil {
		return "", err
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return terms[r.rnd.IntN(len(terms))], nil
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
