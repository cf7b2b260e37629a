package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `[
  {"GARD id": "GARD:0006233", "Name": "Cystic fibrosis", "Synonyms": ["CF", "Mucoviscidosis"]},
  {"GARD id": "GARD:0005786", "Name": "Amyotrophic lateral sclerosis", "Synonyms": ["ALS", "Lou Gehrig disease"]},
  {"GARD id": "GARD:0000001", "Name": "Fava bean allergy", "Synonyms": ["fava"]}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0644))
	corpusPath := filepath.Join(dir, "docs.json")
	require.NoError(t, os.WriteFile(corpusPath, []byte(`[{"id":"1","text":"My CF is back"},{"id":"2","text":"ALS awareness"}]`), 0644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog = config.CatalogConfig{Source: "file", Path: catalogPath}
	cfg.Corpus.Source = "json"
	cfg.Corpus.Path = corpusPath
	cfg.Lexicon.Lemmatizer = "none"
	cfg.Matcher.Workers = 2
	return cfg
}

func TestLoadEngineFromFile(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(cfg, textnorm.Noop, m)
	assert.False(t, engine.Ready())
	assert.Nil(t, engine.Rebuild(blacklist.Snapshot{}))

	p, err := LoadEngine(context.Background(), cfg, Deps{}, engine, blacklist.Snapshot{})
	require.NoError(t, err)
	assert.True(t, engine.Ready())
	assert.Same(t, p, engine.Current())
	assert.Equal(t, 3, p.Stats.Records)
	assert.Equal(t, 3, p.Overrides, "cf and als added, fava removed")

	_, ok := p.Lexicon.Lookup("cf")
	assert.True(t, ok, "default overrides add the cf short form")
	_, ok = p.Lexicon.Lookup("fava")
	assert.False(t, ok, "default overrides drop fava")

	terms, err := p.Resolver.Autosearch("GARD:0006233")
	require.NoError(t, err)
	assert.Contains(t, terms, "cystic fibrosis")
	assert.Greater(t, testutil.ToFloat64(m.LexiconTerms.WithLabelValues("Name")), 0.0)

	docs, err := LoadCorpus(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	res, err := p.Orchestrator.Run(context.Background(), docs, 1)
	require.NoError(t, err)
	assert.Len(t, res.Table, 2)
}

func TestRebuildAppliesBlacklist(t *testing.T) {
	cfg := testConfig(t)
	engine := NewEngine(cfg, textnorm.Noop, nil)
	_, err := LoadEngine(context.Background(), cfg, Deps{}, engine, blacklist.Snapshot{})
	require.NoError(t, err)
	_, ok := engine.Current().Lexicon.Lookup("mucoviscidosis")
	require.True(t, ok)

	p := engine.Rebuild(blacklist.NewSnapshot(nil, []string{"mucoviscidosis"}))
	require.NotNil(t, p)
	_, ok = p.Lexicon.Lookup("mucoviscidosis")
	assert.False(t, ok)
	assert.Same(t, p, engine.Current())
}

func TestLoadEngineFromSnapshot(t *testing.T) {
	cfg := testConfig(t)
	engine := NewEngine(cfg, textnorm.Noop, nil)
	p, err := LoadEngine(context.Background(), cfg, Deps{}, engine, blacklist.Snapshot{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lexicon.rdlx")
	require.NoError(t, lexicon.WriteSnapshot(path, p.Lexicon, LemmatizerName(cfg)))

	cfg.Catalog = config.CatalogConfig{Source: "snapshot", SnapshotPath: path}
	fresh := NewEngine(cfg, textnorm.Noop, nil)
	p2, err := LoadEngine(context.Background(), cfg, Deps{}, fresh, blacklist.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, p.Lexicon.Len(), p2.Lexicon.Len())
	assert.Zero(t, p2.Overrides, "snapshots already carry their overrides")

	p3 := fresh.Rebuild(blacklist.NewSnapshot(nil, []string{"mucoviscidosis"}))
	assert.Same(t, p2.Lexicon, p3.Lexicon)
	assert.True(t, p3.Blacklist.ContainsTerm("mucoviscidosis"))

	cfg.Lexicon.Lemmatizer = "stem"
	_, err = LoadEngine(context.Background(), cfg, Deps{}, NewEngine(cfg, textnorm.Stem, nil), blacklist.Snapshot{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "snapshot built without lemmatization")
	assert.ErrorContains(t, err, `"none"`)

	cfg.Catalog.SnapshotPath = filepath.Join(t.TempDir(), "missing.rdlx")
	_, err = LoadEngine(context.Background(), cfg, Deps{}, NewEngine(cfg, textnorm.Noop, nil), blacklist.Snapshot{})
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}

func TestSourcesNeedConnections(t *testing.T) {
	cfg := testConfig(t)
	for _, src := range []string{"neo4j", "postgres", "bogus"} {
		cfg.Catalog.Source = src
		_, err := CatalogSource(cfg, Deps{})
		assert.ErrorIs(t, err, apperrors.ErrMissingInput, src)
	}
	for _, src := range []string{"postgres", "bogus"} {
		cfg.Corpus.Source = src
		_, err := LoadCorpus(context.Background(), cfg, Deps{})
		assert.ErrorIs(t, err, apperrors.ErrMissingInput, src)
	}
}

func TestConfigMapping(t *testing.T) {
	opts := LexiconOptions(config.LexiconConfig{MinSynonymLength: 6, Stopwords: []string{" Syndrome "}}, nil)
	assert.Equal(t, 2, opts.MinNameLength)
	assert.Equal(t, 6, opts.MinSynonymLength)
	assert.Contains(t, opts.Stopwords, "syndrome")
	assert.Contains(t, opts.Stopwords, "about")

	assert.Equal(t, lexicon.DefaultOverrides(), Overrides(config.LexiconConfig{}))
	assert.Equal(t, []lexicon.Override{{Term: "md", ID: "GARD:0000010"}},
		Overrides(config.LexiconConfig{Overrides: []config.Override{{Term: "md", ID: "GARD:0000010"}}}))

	s := IDScheme(config.LexiconConfig{IDPrefix: "ORPHA", IDWidth: 6})
	assert.Equal(t, "ORPHA:000042", s.Format(42))
	assert.Equal(t, "GARD:0000042", IDScheme(config.LexiconConfig{}).Format(42))

	cfg := testConfig(t)
	lem, err := Lemmatizer(cfg)
	require.NoError(t, err)
	assert.Equal(t, "running", lem.Lemma("running"))
}
