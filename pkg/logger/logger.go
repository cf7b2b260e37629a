// Package logger configures log/slog for the mapper commands and carries
// request and run ids through contexts so every line of one API request or
// one mapping run can be grepped together.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
)

// Setup installs a process-wide logger on stdout.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger without touching the process default. format is
// "json" or anything else for text. Unknown levels mean info. Records
// logged with a context pick up its request and run ids.
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(contextHandler{Handler: h})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// FromContext returns the default logger with the ids in ctx attached, for
// code that logs without passing ctx to each call.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if attrs := idAttrs(ctx); len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}

func idAttrs(ctx context.Context) []any {
	var attrs []any
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id, ok := ctx.Value(runIDKey).(string); ok {
		attrs = append(attrs, slog.String("run_id", id))
	}
	return attrs
}

// contextHandler adds the ids of the record's context, unless the logger
// already carries them from FromContext.
type contextHandler struct {
	slog.Handler
	bound bool
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.bound && ctx != nil {
		for _, a := range idAttrs(ctx) {
			r.AddAttrs(a.(slog.Attr))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.bound
	for _, a := range attrs {
		if a.Key == "request_id" || a.Key == "run_id" {
			bound = true
		}
	}
	return contextHandler{Handler: h.Handler.WithAttrs(attrs), bound: bound}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name), bound: h.bound}
}
