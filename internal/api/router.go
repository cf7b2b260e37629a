package api

import (
	"net/http"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/health"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	pkgmw "github.com/rdsm-lab/disease-mapper/pkg/middleware"
	"github.com/rdsm-lab/disease-mapper/pkg/ratelimit"
)

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	AdminToken     string
	RequestTimeout time.Duration
	AllowOrigins   []string
	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Health  *health.Checker
}

type route struct {
	pattern string
	handler http.Handler
}

// NewRouter builds the resolver HTTP handler.
//
// Route table:
//
//	GET    /api/v1/autosearch?q=                 term expansion
//	GET    /api/v1/random                        random disease
//	POST   /api/v1/match                         map one text
//	POST   /api/v1/match/batch                   map many documents
//	GET    /api/v1/lexicon/stats                 lexicon counters
//	GET    /api/v1/blacklist/{kind}              list subjects or terms
//	POST   /api/v1/blacklist/{kind}              add words (admin)
//	DELETE /api/v1/blacklist/{kind}              remove words (admin)
//	GET    /api/v1/cache/stats                   cache counters
//	POST   /api/v1/cache/invalidate              flush cache (admin)
//	GET    /api/v1/runs                          persisted runs
//	GET    /api/v1/runs/{run}/documents/{doc}    persisted resolution
//	GET    /health/live, /health/ready           health checks
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → RateLimit → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	admin := AdminAuth(cfg.AdminToken)
	routes := []route{
		{"GET /api/v1/autosearch", http.HandlerFunc(h.Autosearch)},
		{"GET /api/v1/random", http.HandlerFunc(h.Random)},
		{"POST /api/v1/match", http.HandlerFunc(h.Match)},
		{"POST /api/v1/match/batch", http.HandlerFunc(h.MatchBatch)},
		{"GET /api/v1/lexicon/stats", http.HandlerFunc(h.LexiconStats)},

		{"GET /api/v1/blacklist/{kind}", http.HandlerFunc(h.ListBlacklist)},
		{"POST /api/v1/blacklist/{kind}", admin(http.HandlerFunc(h.AddBlacklist))},
		{"DELETE /api/v1/blacklist/{kind}", admin(http.HandlerFunc(h.RemoveBlacklist))},

		{"GET /api/v1/cache/stats", http.HandlerFunc(h.CacheStats)},
		{"POST /api/v1/cache/invalidate", admin(http.HandlerFunc(h.CacheInvalidate))},

		{"GET /api/v1/runs", http.HandlerFunc(h.ListRuns)},
		{"GET /api/v1/runs/{run}/documents/{doc}", http.HandlerFunc(h.RunDocument)},
	}
	if cfg.Health != nil {
		routes = append(routes,
			route{"GET /health/live", cfg.Health.LiveHandler()},
			route{"GET /health/ready", cfg.Health.ReadyHandler()},
		)
	}

	mux := http.NewServeMux()
	patterns := make([]string, 0, len(routes))
	for _, rt := range routes {
		mux.Handle(rt.pattern, rt.handler)
		patterns = append(patterns, rt.pattern)
	}

	var chain http.Handler = mux
	chain = RateLimit(cfg.Limiter)(chain)
	if cfg.RequestTimeout > 0 {
		chain = pkgmw.Timeout(cfg.RequestTimeout)(chain)
	}
	if cfg.Metrics != nil {
		chain = pkgmw.Metrics(cfg.Metrics, patterns...)(chain)
	}
	chain = pkgmw.CORS(pkgmw.DefaultCORSConfig(cfg.AllowOrigins...))(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
