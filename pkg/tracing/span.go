// Package tracing times a run and its batches as a tree of spans carried in
// the context. Finished trees are written to slog at debug level, with the
// slowest children summarized at info level.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed operation. Children may be added from many goroutines.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent the
// child is a detached root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Slowest returns up to n finished children, longest first.
func (s *Span) Slowest(n int) []*Span {
	s.mu.Lock()
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Duration > children[j].Duration
	})
	if len(children) > n {
		children = children[:n]
	}
	return children
}

// Log writes the root summary at info level and the whole tree at debug.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := s.attrs(0)
	s.mu.Lock()
	attrs = append(attrs, "children", len(s.Children))
	s.mu.Unlock()
	if slow := s.Slowest(1); len(slow) == 1 {
		attrs = append(attrs, "slowest", slow[0].Name, "slowest_ms", slow[0].Duration.Milliseconds())
	}
	logger.InfoContext(ctx, "span finished", attrs...)

	if logger.Enabled(ctx, slog.LevelDebug) {
		for _, child := range s.snapshotChildren() {
			child.logRecursive(ctx, logger, 1)
		}
	}
}

func (s *Span) logRecursive(ctx context.Context, logger *slog.Logger, depth int) {
	logger.DebugContext(ctx, "span", s.attrs(depth)...)
	for _, child := range s.snapshotChildren() {
		child.logRecursive(ctx, logger, depth+1)
	}
}

func (s *Span) snapshotChildren() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.Children...)
}

func (s *Span) attrs(depth int) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, s.Attrs[k])
	}
	return attrs
}
