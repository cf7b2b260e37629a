// Command mapper runs one batch mapping job: it loads the disease catalog and
// a document corpus, finds disease mentions and writes the results to the
// output directory and, optionally, to Postgres.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rdsm-lab/disease-mapper/internal/app"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/orchestrator"
	"github.com/rdsm-lab/disease-mapper/internal/report"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	"github.com/rdsm-lab/disease-mapper/internal/store"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
)

type summary struct {
	*orchestrator.Result
	Lexicon   lexicon.BuildStats `json:"lexicon"`
	Terms     int                `json:"terms"`
	Overrides int                `json:"overrides"`
	Resolved  int                `json:"resolved_documents"`
	Outputs   []string           `json:"outputs"`
}

type output struct {
	name string
	fn   func(io.Writer) error
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "corpus file, overrides corpus.path")
	outDir := flag.String("out", "", "output directory, overrides output.dir")
	batchSize := flag.Int("batch-size", 0, "documents per batch, overrides matcher.batchSize")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Corpus.Path = *input
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *batchSize > 0 {
		cfg.Matcher.BatchSize = *batchSize
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := errors.Join(cfg.Validate(), cfg.ValidateCorpus()); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(apperrors.ExitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("mapping run failed", "error", err)
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		if srv, err := metrics.Serve(cfg.Metrics.Port); err != nil {
			slog.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer srv.Close()
		}
	}

	deps, err := app.OpenDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	lem, err := app.Lemmatizer(cfg)
	if err != nil {
		return err
	}
	set, err := app.OpenBlacklist(cfg)
	if err != nil {
		return err
	}
	engine := app.NewEngine(cfg, lem, m)
	p, err := app.LoadEngine(ctx, cfg, deps, engine, set.Snapshot())
	if err != nil {
		return err
	}
	docs, err := app.LoadCorpus(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	slog.Info("starting mapping run",
		"documents", len(docs),
		"batch_size", cfg.Matcher.BatchSize,
		"workers", cfg.Matcher.Workers,
		"terms", p.Lexicon.Len(),
	)

	res, runErr := p.Orchestrator.Run(ctx, docs, cfg.Matcher.BatchSize)
	resolved := p.Resolver.ResolveTable(res.Table)

	sum := summary{
		Result:    res,
		Lexicon:   p.Stats,
		Terms:     p.Lexicon.Len(),
		Overrides: p.Overrides,
		Resolved:  len(resolved),
	}
	writes := []output{
		{report.MatchesFile, func(w io.Writer) error { return report.WriteMatches(w, res.Table) }},
		{report.ResolvedFile, func(w io.Writer) error { return report.WriteResolved(w, resolved) }},
	}
	if cfg.Output.WriteWeighted {
		weights := report.Weigh(res.Table, cfg.Output.ColumnOrder)
		writes = append(writes, output{report.WeightsFile, func(w io.Writer) error { return report.WriteWeightsCSV(w, weights) }})
	}
	for _, wr := range writes {
		path, err := report.WriteFile(cfg.Output.Dir, wr.name, wr.fn)
		if err != nil {
			return err
		}
		sum.Outputs = append(sum.Outputs, path)
	}
	if _, err := report.WriteFile(cfg.Output.Dir, report.SummaryFile, func(w io.Writer) error {
		return report.WriteJSON(w, sum)
	}); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}

	if cfg.Output.SaveToStore {
		if deps.Postgres == nil {
			slog.Warn("output.saveToStore is set but postgres is not enabled, skipping")
		} else if err := saveRun(ctx, deps, res, p.Stats, resolved); err != nil {
			return err
		}
	}

	slog.Info("mapping run complete",
		"run_id", res.RunID,
		"documents", res.Documents,
		"skipped", len(res.Skipped),
		"hits", res.Hits,
		"filtered", res.Filtered,
		"resolved_documents", len(resolved),
		"duration", res.Duration,
		"output_dir", cfg.Output.Dir,
	)
	return nil
}

func saveRun(ctx context.Context, deps app.Deps, res *orchestrator.Result, stats lexicon.BuildStats, resolved map[string]resolver.Resolved) error {
	st := store.New(deps.Postgres)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding lexicon stats: %w", err)
	}
	return st.SaveRun(ctx, store.Run{
		ID:        res.RunID,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
		Documents: res.Documents,
		Skipped:   len(res.Skipped),
		Hits:      res.Hits,
		Filtered:  res.Filtered,
		Stats:     raw,
	}, res.Table, resolved)
}
