package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("lexicon loaded")
	l.Warn("blacklist file missing")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])

	buf.Reset()
	New(&buf, "verbose", "text").Debug("hidden")
	assert.Empty(t, buf.String(), "unknown levels fall back to info")
}

func TestContextIDsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-9")
	slog.InfoContext(ctx, "batch started")
	FromContext(ctx).Info("batch finished")
	FromContext(ctx).InfoContext(ctx, "no duplicates")
	slog.Info("no context")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	for _, l := range lines[:3] {
		assert.Equal(t, "req-1", l["request_id"])
		assert.Equal(t, "run-9", l["run_id"])
	}
	assert.Equal(t, 1, strings.Count(strings.Split(buf.String(), "\n")[2], `"run_id"`))
	assert.NotContains(t, lines[3], "request_id")
}
