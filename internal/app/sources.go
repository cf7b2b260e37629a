package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/catalog"
	"github.com/rdsm-lab/disease-mapper/internal/corpus"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/neo4j"
	"github.com/rdsm-lab/disease-mapper/pkg/postgres"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

// Deps are the optional backing services. A nil field means the service is
// not configured.
type Deps struct {
	Postgres *postgres.Client
	Neo4j    *neo4j.Driver
}

// OpenDeps connects to the services the configuration enables. Postgres is
// opened when enabled and Neo4j only when it is the catalog source.
func OpenDeps(ctx context.Context, cfg *config.Config) (Deps, error) {
	var deps Deps
	if cfg.Postgres.Enabled {
		pg, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return deps, fmt.Errorf("connecting to postgres: %w", err)
		}
		deps.Postgres = pg
	}
	if cfg.Catalog.Source == "neo4j" {
		drv, err := neo4j.NewDriver(ctx, cfg.Neo4j)
		if err != nil {
			deps.Close(context.Background())
			return Deps{}, fmt.Errorf("connecting to neo4j: %w", err)
		}
		deps.Neo4j = drv
	}
	return deps, nil
}

// Close releases every open connection.
func (d Deps) Close(ctx context.Context) {
	if d.Postgres != nil {
		if err := d.Postgres.Close(); err != nil {
			slog.Warn("closing postgres", "error", err)
		}
	}
	if d.Neo4j != nil {
		if err := d.Neo4j.Close(ctx); err != nil {
			slog.Warn("closing neo4j", "error", err)
		}
	}
}

// remoteLoad bounds each round trip to a catalog or corpus database.
var remoteLoad = resilience.Backoff{
	Attempts:   3,
	Initial:    500 * time.Millisecond,
	Max:        5 * time.Second,
	PerAttempt: 2 * time.Minute,
}

// Lemmatizer resolves the configured lemmatizer name.
func Lemmatizer(cfg *config.Config) (textnorm.Lemmatizer, error) {
	return textnorm.LemmatizerByName(cfg.Lexicon.Lemmatizer)
}

// LemmatizerName is the configured lemmatizer with the default spelled out,
// as recorded in lexicon snapshots.
func LemmatizerName(cfg *config.Config) string {
	if cfg.Lexicon.Lemmatizer == "" {
		return "dictionary"
	}
	return cfg.Lexicon.Lemmatizer
}

// OpenBlacklist loads the curated defaults plus the configured file.
func OpenBlacklist(cfg *config.Config) (*blacklist.Set, error) {
	set, err := blacklist.Load(cfg.Blacklist.Path, cfg.Blacklist.SkipDefaults)
	if err != nil {
		return nil, fmt.Errorf("loading blacklist: %w", err)
	}
	snap := set.Snapshot()
	slog.Info("blacklist loaded",
		"path", cfg.Blacklist.Path,
		"subjects", snap.Len(blacklist.Subjects),
		"terms", snap.Len(blacklist.Terms),
	)
	return set, nil
}

// CatalogSource picks the configured disease catalog. The "snapshot" source
// has no records and is handled by LoadEngine.
func CatalogSource(cfg *config.Config, deps Deps) (catalog.Source, error) {
	switch cfg.Catalog.Source {
	case "file":
		return catalog.FileSource{Path: cfg.Catalog.Path, RareOnly: cfg.Catalog.RareOnly}, nil
	case "neo4j":
		if deps.Neo4j == nil {
			return nil, apperrors.New(apperrors.ErrMissingInput, "neo4j catalog source needs a neo4j connection")
		}
		return catalog.NewNeo4jSource(deps.Neo4j, cfg.Catalog.RareOnly), nil
	case "postgres":
		if deps.Postgres == nil {
			return nil, apperrors.New(apperrors.ErrMissingInput, "postgres catalog source needs a postgres connection")
		}
		return catalog.NewPostgresSource(deps.Postgres, cfg.Catalog.Query), nil
	}
	return nil, apperrors.Newf(apperrors.ErrMissingInput, "unknown catalog source %q", cfg.Catalog.Source)
}

// LoadEngine fills engine from the configured catalog or lexicon snapshot.
func LoadEngine(ctx context.Context, cfg *config.Config, deps Deps, engine *Engine, bl blacklist.Snapshot) (*Pipeline, error) {
	if cfg.Catalog.Source == "snapshot" {
		lex, hdr, err := lexicon.ReadSnapshot(cfg.Catalog.SnapshotPath)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrMissingInput, "reading lexicon snapshot: %v", err)
		}
		if want := LemmatizerName(cfg); hdr.Lemmatizer != want {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput,
				"lexicon snapshot %s was built with lemmatizer %q but lexicon.lemmatizer is %q",
				cfg.Catalog.SnapshotPath, hdr.Lemmatizer, want)
		}
		slog.Info("lexicon snapshot loaded",
			"path", cfg.Catalog.SnapshotPath,
			"terms", hdr.TermCount,
			"ids", hdr.IDCount,
			"lemmatizer", hdr.Lemmatizer,
			"created_at", time.Unix(hdr.CreatedAt, 0).UTC(),
		)
		return engine.LoadLexicon(lex, bl), nil
	}

	src, err := CatalogSource(cfg, deps)
	if err != nil {
		return nil, err
	}
	var records []lexicon.Record
	load := func(ctx context.Context) error {
		var err error
		records, err = src.Load(ctx)
		return err
	}
	if cfg.Catalog.Source == "file" {
		err = load(ctx)
	} else {
		err = resilience.Retry(ctx, "load-catalog", remoteLoad, load)
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog from %s: %w", cfg.Catalog.Source, err)
	}
	slog.Info("catalog loaded", "source", cfg.Catalog.Source, "records", len(records))
	return engine.LoadRecords(records, bl), nil
}

// LoadCorpus reads the configured documents.
func LoadCorpus(ctx context.Context, cfg *config.Config, deps Deps) ([]corpus.Document, error) {
	c := cfg.Corpus
	switch c.Source {
	case "json":
		return corpus.LoadJSONFile(c.Path, corpus.JSONOptions{IDField: c.IDField, TextFields: c.TextFields})
	case "csv":
		return corpus.LoadCSVFile(c.Path, corpus.CSVOptions{
			IDField:    c.IDField,
			TextFields: c.TextFields,
			Comma:      corpus.ParseComma(c.CSVComma),
		})
	case "postgres":
		if deps.Postgres == nil {
			return nil, apperrors.New(apperrors.ErrMissingInput, "postgres corpus source needs a postgres connection")
		}
		var docs []corpus.Document
		err := resilience.Retry(ctx, "load-corpus", remoteLoad, func(ctx context.Context) error {
			var err error
			docs, err = corpus.NewPostgresSource(deps.Postgres, c.Query).Load(ctx)
			return err
		})
		return docs, err
	}
	return nil, apperrors.Newf(apperrors.ErrMissingInput, "unknown corpus source %q", c.Source)
}
