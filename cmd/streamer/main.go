// Command streamer consumes documents from Kafka, maps them through the
// pipeline and publishes one result event per document. A message is
// committed only after its results are published.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/app"
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/orchestrator"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	"github.com/rdsm-lab/disease-mapper/internal/stream"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/health"
	"github.com/rdsm-lab/disease-mapper/pkg/kafka"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topics.Documents == "" || cfg.Kafka.Topics.Results == "" {
		slog.Error("kafka.brokers, kafka.topics.documents and kafka.topics.results are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		slog.Error("failed to connect backing services", "error", err)
		os.Exit(1)
	}
	defer deps.Close(context.Background())

	lem, err := app.Lemmatizer(cfg)
	if err != nil {
		slog.Error("invalid lemmatizer", "error", err)
		os.Exit(1)
	}
	set, err := app.OpenBlacklist(cfg)
	if err != nil {
		slog.Error("failed to load blacklist", "error", err)
		os.Exit(1)
	}
	engine := app.NewEngine(cfg, lem, m)
	if _, err := app.LoadEngine(ctx, cfg, deps, engine, set.Snapshot()); err != nil {
		slog.Error("failed to load lexicon", "error", err)
		os.Exit(1)
	}

	if cfg.Blacklist.Watch && cfg.Blacklist.Path != "" {
		w := blacklist.NewWatcher(cfg.Blacklist.Path, set, cfg.Blacklist.SkipDefaults, func(snap blacklist.Snapshot) {
			engine.Rebuild(snap)
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("blacklist watcher stopped", "error", err)
			}
		}()
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Results)
	defer producer.Close()

	processor := stream.NewProcessor(nil, nil, producer, stream.Config{
		BatchSize: cfg.Matcher.BatchSize,
		Metrics:   m,
		Retry: resilience.Backoff{
			Attempts:   5,
			Initial:    200 * time.Millisecond,
			Max:        5 * time.Second,
			PerAttempt: 10 * time.Second,
		},
		Source: func() (*orchestrator.Orchestrator, *resolver.Resolver) {
			p := engine.Current()
			return p.Orchestrator, p.Resolver
		},
	})
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents, processor.Handler())

	checker := health.NewChecker()
	checker.Register("lexicon", health.ValueCheck(engine.Ready, "lexicon not loaded"))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	slog.Info("streamer ready, consuming from kafka",
		"documents_topic", cfg.Kafka.Topics.Documents,
		"results_topic", cfg.Kafka.Topics.Results,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}
	slog.Info("streamer stopped")
}
