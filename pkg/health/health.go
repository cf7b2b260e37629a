// Package health answers liveness and readiness checks. Readiness runs every
// registered dependency check in parallel, each under its own deadline. A
// critical dependency that fails (the lexicon, a catalog database that has
// to be reachable) marks the service down; an optional one such as the
// Redis cache only degrades it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// CheckTimeout bounds a single check during Run.
const CheckTimeout = 2 * time.Second

// Check tests one dependency. Latency is filled in by Run.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	started time.Time
	logger  *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: CheckTimeout,
		started: time.Now(),
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run executes every check concurrently. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			res := c.runOne(ctx, name, check)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report := Report{Status: StatusUp, Components: results, Timestamp: time.Now().UTC()}
	for _, r := range results {
		if r.Status.severity() > report.Status.severity() {
			report.Status = r.Status
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, check Check) ComponentHealth {
	start := time.Now()
	var res ComponentHealth
	err := resilience.WithTimeout(ctx, c.timeout, name, func(ctx context.Context) error {
		done := make(chan ComponentHealth, 1)
		go func() { done <- check(ctx) }()
		select {
		case res = <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		res = ComponentHealth{Status: StatusDown, Message: err.Error()}
	}
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}

// Pinger is implemented by the Postgres, Redis and Neo4j clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports down when a critical dependency fails to answer and
// degraded for an optional one.
func PingCheck(p Pinger, critical bool) Check {
	failed := StatusDegraded
	if critical {
		failed = StatusDown
	}
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// ValueCheck reports down with message while ready returns false.
func ValueCheck(ready func() bool, message string) Check {
	return func(context.Context) ComponentHealth {
		if ready() {
			return ComponentHealth{Status: StatusUp}
		}
		return ComponentHealth{Status: StatusDown, Message: message}
	}
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers 503 only when the report is down. Degraded stays in
// rotation so that a cache outage does not take the resolver offline.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
			c.logger.Warn("not ready", "components", report.Components)
		}
		c.write(w, status, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}
