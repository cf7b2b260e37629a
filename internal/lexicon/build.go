package lexicon

import (
	"strings"
	"unicode/utf8"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
)

// Options controls which catalog terms become lexicon keys.
type Options struct {
	// Normalizer must be the same one used on documents. Nil means a
	// normalizer without lemmatization.
	Normalizer          *textnorm.Normalizer
	MinNameLength       int
	MinSynonymLength    int
	SkipAcronymSynonyms bool
	// Stopwords defaults to DefaultStopwords when nil.
	Stopwords map[string]struct{}
}

// DefaultOptions mirrors the thresholds the GARD search tooling used.
func DefaultOptions() Options {
	return Options{
		MinNameLength:       2,
		MinSynonymLength:    4,
		SkipAcronymSynonyms: true,
	}
}

// BuildStats counts what happened to every catalog term.
type BuildStats struct {
	Records        int `json:"records"`
	SkippedRecords int `json:"skipped_records"`
	Names          int `json:"names"`
	Synonyms       int `json:"synonyms"`
	Conflicts      int `json:"conflicts"`
	Blacklisted    int `json:"blacklisted"`
	Acronyms       int `json:"acronyms"`
	TooShort       int `json:"too_short"`
	Stopwords      int `json:"stopwords"`
	MaxPhraseLen   int `json:"max_phrase_len"`
}

type builder struct {
	lex   *Lexicon
	opts  Options
	bl    blacklist.Snapshot
	stats BuildStats
}

// Build normalizes every record and inserts its name and synonyms. Records
// without an id or a name are skipped and counted. When two records produce
// the same term a Name beats a Synonym; otherwise the first one wins.
func Build(records []Record, opts Options, bl blacklist.Snapshot) (*Lexicon, BuildStats) {
	if opts.Normalizer == nil {
		opts.Normalizer = textnorm.New(nil, bl)
	}
	if opts.Stopwords == nil {
		opts.Stopwords = DefaultStopwords()
	}
	b := &builder{lex: newLexicon(), opts: opts, bl: bl}
	for _, rec := range records {
		b.add(rec)
	}
	b.lex.reindex()
	b.stats.MaxPhraseLen = b.lex.maxPhraseLen
	return b.lex, b.stats
}

func (b *builder) add(rec Record) {
	b.stats.Records++
	id := strings.TrimSpace(rec.ID)
	name := strings.TrimSpace(rec.Name)
	if id == "" || name == "" {
		b.stats.SkippedRecords++
		return
	}
	if _, dup := b.lex.names[id]; dup {
		b.stats.SkippedRecords++
		return
	}

	norm := b.opts.Normalizer
	normName := norm.Normalize(name)
	b.lex.names[id] = normName
	b.lex.display[id] = name
	if key := tokenizer.Key(normName); key != "" {
		b.lex.nameIndex[key] = append(b.lex.nameIndex[key], id)
		if b.accept(name, key, b.opts.MinNameLength) {
			b.insert(key, Entry{ID: id, Type: Name})
		}
	}

	for _, syn := range rec.Synonyms {
		normSyn := norm.Normalize(syn)
		if normSyn == "" {
			continue
		}
		b.lex.synonyms[id] = append(b.lex.synonyms[id], normSyn)
		if b.opts.SkipAcronymSynonyms && textnorm.IsAcronym(normSyn, true) {
			b.stats.Acronyms++
			continue
		}
		key := tokenizer.Key(normSyn)
		if key != "" && b.accept(syn, key, b.opts.MinSynonymLength) {
			b.insert(key, Entry{ID: id, Type: Synonym})
		}
	}
}

func (b *builder) accept(raw, key string, minLen int) bool {
	if b.bl.ContainsTerm(raw) || b.bl.ContainsTerm(key) {
		b.stats.Blacklisted++
		return false
	}
	if utf8.RuneCountInString(key) < minLen {
		b.stats.TooShort++
		return false
	}
	if _, stop := b.opts.Stopwords[key]; stop {
		b.stats.Stopwords++
		return false
	}
	return true
}

func (b *builder) insert(key string, e Entry) {
	prev, exists := b.lex.terms[key]
	switch {
	case !exists:
	case prev.ID == e.ID:
		if prev.Type == Synonym && e.Type == Name {
			b.lex.terms[key] = e
			b.count(prev.Type, -1)
			b.count(e.Type, 1)
		}
		return
	case prev.Type == Synonym && e.Type == Name:
		b.stats.Conflicts++
		b.count(prev.Type, -1)
	default:
		b.stats.Conflicts++
		return
	}
	b.lex.terms[key] = e
	b.count(e.Type, 1)
}

func (b *builder) count(t PatternType, delta int) {
	if t == Name {
		b.stats.Names += delta
	} else {
		b.stats.Synonyms += delta
	}
}
