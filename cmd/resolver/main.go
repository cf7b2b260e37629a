// Command resolver serves the disease lookup HTTP API: autosearch term
// expansion, ad-hoc matching of submitted text and blacklist administration.
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

	"github.com/rdsm-lab/disease-mapper/internal/api"
	"github.com/rdsm-lab/disease-mapper/internal/app"
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/cache"
	"github.com/rdsm-lab/disease-mapper/internal/store"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/health"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	"github.com/rdsm-lab/disease-mapper/pkg/ratelimit"
	pkgredis "github.com/rdsm-lab/disease-mapper/pkg/redis"
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
	slog.Info("starting resolver service", "port", cfg.Server.Port, "catalog", cfg.Catalog.Source)

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

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, autosearch caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("autosearch cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	autosearchCache := cache.NewRedis(redisClient, cfg.Redis.CacheTTL, cache.WithMetrics(m))

	var runStore *store.Store
	if deps.Postgres != nil {
		runStore = store.New(deps.Postgres)
	}

	checker := health.NewChecker()
	checker.Register("lexicon", health.ValueCheck(engine.Ready, "lexicon not loaded"))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient, false))
	}
	if deps.Postgres != nil {
		checker.Register("postgres", health.PingCheck(deps.Postgres, false))
	}
	if deps.Neo4j != nil {
		checker.Register("neo4j", health.PingCheck(deps.Neo4j, false))
	}

	h := api.New(engine, set, api.Config{
		Cache:         autosearchCache,
		Store:         runStore,
		BlacklistPath: cfg.Blacklist.Path,
		Metrics:       m,
	})

	if cfg.Blacklist.Watch && cfg.Blacklist.Path != "" {
		w := blacklist.NewWatcher(cfg.Blacklist.Path, set, cfg.Blacklist.SkipDefaults, func(snap blacklist.Snapshot) {
			h.Reload(ctx, snap)
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("blacklist watcher stopped", "error", err)
			}
		}()
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, time.Minute)
		go limiter.Cleanup(ctx, 5*time.Minute)
	}
	if cfg.Server.AdminToken == "" {
		slog.Warn("no admin token configured, blacklist edits and cache invalidation are disabled")
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(h, api.RouterConfig{
			AdminToken:     cfg.Server.AdminToken,
			RequestTimeout: cfg.Server.RequestTimeout,
			AllowOrigins:   cfg.Server.AllowOrigins,
			Limiter:        limiter,
			Metrics:        m,
			Health:         checker,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("resolver service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("resolver service stopped")
}
