// Package middleware holds the HTTP middleware shared by the mapper
// services: request ids, Prometheus instrumentation, CORS and deadlines.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
)

// UnmatchedRoute labels requests for paths outside the registered routes so
// that scanners cannot blow up label cardinality.
const UnmatchedRoute = "unmatched"

// Metrics records count, latency and in-flight requests. The path label is
// the registered route pattern the request matched, e.g.
// "/api/v1/blacklist/{kind}". Patterns may carry a method prefix as
// accepted by http.ServeMux. With no patterns the raw path is used.
func Metrics(m *metrics.Metrics, patterns ...string) func(http.Handler) http.Handler {
	routes := compileRoutes(patterns)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if len(routes) > 0 {
				route = routes.label(r.URL.Path)
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

type routeSet [][]string

func compileRoutes(patterns []string) routeSet {
	seen := make(map[string]bool, len(patterns))
	var rs routeSet
	for _, p := range patterns {
		if i := strings.IndexByte(p, ' '); i >= 0 {
			p = strings.TrimSpace(p[i+1:])
		}
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		rs = append(rs, segments(p))
	}
	return rs
}

func (rs routeSet) label(path string) string {
	segs := segments(path)
	for _, route := range rs {
		if matchSegments(route, segs) {
			return "/" + strings.Join(route, "/")
		}
	}
	return UnmatchedRoute
}

func segments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// matchSegments treats a "{name}" route segment as matching any single
// non-empty path segment.
func matchSegments(route, path []string) bool {
	if len(route) != len(path) {
		return false
	}
	for i, seg := range route {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
