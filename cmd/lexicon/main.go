// Command lexicon builds the matching lexicon from the configured disease
// catalog and writes it as a snapshot that the other services can load
// without reaching the catalog. It can also export the catalog records as
// JSON or copy them into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/app"
	"github.com/rdsm-lab/disease-mapper/internal/catalog"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/report"
	"github.com/rdsm-lab/disease-mapper/internal/store"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	snapshotPath := flag.String("snapshot", "", "snapshot output path, overrides catalog.snapshotPath")
	exportJSON := flag.String("export-json", "", "also write the catalog records to this JSON file")
	syncPostgres := flag.Bool("sync-postgres", false, "also upsert the catalog records into the diseases table")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *snapshotPath != "" {
		cfg.Catalog.SnapshotPath = *snapshotPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Catalog.Source == "snapshot" {
		slog.Error("catalog.source must name a catalog, not a snapshot, when building one")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Catalog.SnapshotPath == "" {
		slog.Error("catalog.snapshotPath or -snapshot is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := build(ctx, cfg, *exportJSON, *syncPostgres); err != nil {
		slog.Error("lexicon build failed", "error", err)
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}

func build(ctx context.Context, cfg *config.Config, exportJSON string, syncPostgres bool) error {
	start := time.Now()
	deps, err := app.OpenDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	src, err := app.CatalogSource(cfg, deps)
	if err != nil {
		return err
	}
	var records []lexicon.Record
	err = resilience.Retry(ctx, "load-catalog", resilience.Backoff{
		Attempts:   5,
		Initial:    time.Second,
		Max:        30 * time.Second,
		PerAttempt: 5 * time.Minute,
	}, func(ctx context.Context) error {
		var err error
		records, err = src.Load(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	lem, err := app.Lemmatizer(cfg)
	if err != nil {
		return err
	}
	set, err := app.OpenBlacklist(cfg)
	if err != nil {
		return err
	}
	p := app.NewEngine(cfg, lem, nil).LoadRecords(records, set.Snapshot())
	if err := lexicon.WriteSnapshot(cfg.Catalog.SnapshotPath, p.Lexicon, app.LemmatizerName(cfg)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if exportJSON != "" {
		f, err := os.Create(exportJSON)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportJSON, err)
		}
		err = catalog.WriteJSON(f, records)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("exporting catalog: %w", err)
		}
		slog.Info("catalog exported", "path", exportJSON, "records", len(records))
	}

	if syncPostgres {
		if deps.Postgres == nil {
			return fmt.Errorf("-sync-postgres needs postgres.enabled")
		}
		if err := store.New(deps.Postgres).Migrate(ctx); err != nil {
			return err
		}
		if err := catalog.NewPostgresSource(deps.Postgres, "").Save(ctx, records); err != nil {
			return err
		}
		slog.Info("catalog synced to postgres", "records", len(records))
	}

	names, synonyms := p.Lexicon.CountByType()
	slog.Info("lexicon snapshot written",
		"path", cfg.Catalog.SnapshotPath,
		"records", p.Stats.Records,
		"skipped_records", p.Stats.SkippedRecords,
		"terms", p.Lexicon.Len(),
		"names", names,
		"synonyms", synonyms,
		"conflicts", p.Stats.Conflicts,
		"blacklisted", p.Stats.Blacklisted,
		"acronyms", p.Stats.Acronyms,
		"overrides", p.Overrides,
		"max_phrase_len", p.Lexicon.MaxPhraseLen(),
		"duration", time.Since(start),
	)
	return report.WriteJSON(os.Stdout, p.Stats)
}
