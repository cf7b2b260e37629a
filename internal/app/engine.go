// Package app wires configuration into the mapping pipeline. The services in
// cmd/ share it so that a batch run, the resolver API and the stream
// consumer normalize, match and resolve identically.
package app

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/orchestrator"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
)

// Pipeline is everything derived from one lexicon and one blacklist
// snapshot. It is immutable and shared across goroutines.
type Pipeline struct {
	Lexicon      *lexicon.Lexicon
	Stats        lexicon.BuildStats
	Overrides    int
	Normalizer   *textnorm.Normalizer
	Matcher      *matcher.Matcher
	Orchestrator *orchestrator.Orchestrator
	Resolver     *resolver.Resolver
	Blacklist    blacklist.Snapshot
	BuiltAt      time.Time
}

// Engine holds the current Pipeline and rebuilds it when the blacklist
// changes. Readers call Current and never block on a rebuild.
type Engine struct {
	cfg     *config.Config
	lem     textnorm.Lemmatizer
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	records  []lexicon.Record
	prebuilt *lexicon.Lexicon
	current  atomic.Pointer[Pipeline]
}

// NewEngine returns an engine with no pipeline loaded. m may be nil.
func NewEngine(cfg *config.Config, lem textnorm.Lemmatizer, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		lem:     lem,
		metrics: m,
		logger:  slog.Default().With("component", "engine"),
	}
}

// Current returns the active pipeline, or nil before the first load.
func (e *Engine) Current() *Pipeline {
	return e.current.Load()
}

// Ready reports whether a pipeline with at least one term is loaded.
func (e *Engine) Ready() bool {
	p := e.current.Load()
	return p != nil && p.Lexicon.Len() > 0
}

// LoadRecords builds a lexicon from catalog records and makes it current.
// The records are kept so that later blacklist edits can rebuild it.
func (e *Engine) LoadRecords(records []lexicon.Record, bl blacklist.Snapshot) *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records, e.prebuilt = records, nil
	return e.swap(e.build(bl))
}

// LoadLexicon installs a lexicon read from a snapshot. Without catalog
// records a blacklist edit only refreshes the filter and normalizer; terms
// already in the lexicon stay.
func (e *Engine) LoadLexicon(lex *lexicon.Lexicon, bl blacklist.Snapshot) *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records, e.prebuilt = nil, lex
	return e.swap(e.build(bl))
}

// Rebuild recomputes the pipeline against a new blacklist snapshot. It is a
// no-op before the first load.
func (e *Engine) Rebuild(bl blacklist.Snapshot) *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.records == nil && e.prebuilt == nil {
		return nil
	}
	return e.swap(e.build(bl))
}

func (e *Engine) swap(p *Pipeline) *Pipeline {
	e.current.Store(p)
	if e.metrics != nil {
		names, synonyms := p.Lexicon.CountByType()
		e.metrics.LexiconTerms.WithLabelValues("Name").Set(float64(names))
		e.metrics.LexiconTerms.WithLabelValues("Synonym").Set(float64(synonyms))
	}
	return p
}

func (e *Engine) build(bl blacklist.Snapshot) *Pipeline {
	start := time.Now()
	norm := textnorm.New(e.lem, bl)
	p := &Pipeline{Normalizer: norm, Blacklist: bl}

	if e.prebuilt != nil {
		p.Lexicon = e.prebuilt
	} else {
		p.Lexicon, p.Stats = lexicon.Build(e.records, LexiconOptions(e.cfg.Lexicon, norm), bl)
		p.Overrides = p.Lexicon.ApplyOverrides(Overrides(e.cfg.Lexicon), norm)
	}

	p.Matcher = matcher.New(p.Lexicon, matcher.WithContextWindow(e.cfg.Matcher.ContextWindow))
	p.Orchestrator = orchestrator.New(norm, p.Matcher, bl, orchestrator.Options{
		Workers:     e.cfg.Matcher.Workers,
		MaxTextSize: e.cfg.Corpus.MaxTextSize,
		Metrics:     e.metrics,
	})
	p.Resolver = resolver.New(p.Lexicon,
		resolver.WithNormalizer(norm),
		resolver.WithIDScheme(IDScheme(e.cfg.Lexicon)),
	)
	p.BuiltAt = time.Now()

	names, synonyms := p.Lexicon.CountByType()
	e.logger.Info("pipeline built",
		"terms", p.Lexicon.Len(),
		"names", names,
		"synonyms", synonyms,
		"max_phrase_len", p.Lexicon.MaxPhraseLen(),
		"skipped_records", p.Stats.SkippedRecords,
		"conflicts", p.Stats.Conflicts,
		"overrides", p.Overrides,
		"blacklist_version", bl.Version,
		"duration", time.Since(start),
	)
	return p
}

// LexiconOptions maps configuration onto lexicon build options.
func LexiconOptions(cfg config.LexiconConfig, norm *textnorm.Normalizer) lexicon.Options {
	opts := lexicon.DefaultOptions()
	opts.Normalizer = norm
	if cfg.MinNameLength > 0 {
		opts.MinNameLength = cfg.MinNameLength
	}
	if cfg.MinSynonymLength > 0 {
		opts.MinSynonymLength = cfg.MinSynonymLength
	}
	opts.SkipAcronymSynonyms = cfg.SkipAcronymSynonyms
	if len(cfg.Stopwords) > 0 {
		opts.Stopwords = lexicon.DefaultStopwords()
		for _, w := range cfg.Stopwords {
			opts.Stopwords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
	}
	return opts
}

// Overrides returns the configured overrides, or the built-in ones when none
// are configured.
func Overrides(cfg config.LexiconConfig) []lexicon.Override {
	if len(cfg.Overrides) == 0 {
		return lexicon.DefaultOverrides()
	}
	out := make([]lexicon.Override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		out = append(out, lexicon.Override{Term: o.Term, ID: o.ID})
	}
	return out
}

// IDScheme returns the configured id scheme, defaulting each unset part.
func IDScheme(cfg config.LexiconConfig) resolver.IDScheme {
	s := resolver.DefaultIDScheme()
	if cfg.IDPrefix != "" {
		s.Prefix = cfg.IDPrefix
	}
	if cfg.IDWidth > 0 {
		s.Width = cfg.IDWidth
	}
	return s
}
