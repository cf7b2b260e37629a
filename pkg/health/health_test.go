package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("lexicon", ValueCheck(func() bool { return true }, "lexicon not loaded"))
	c.Register("redis", PingCheck(pingFunc(func(context.Context) error { return errors.New("connection refused") }), false))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["lexicon"].Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)

	c.Register("postgres", PingCheck(pingFunc(func(context.Context) error { return errors.New("timeout") }), true))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	ready := false
	c := NewChecker()
	c.Register("lexicon", ValueCheck(func() bool { return ready }, "lexicon not loaded"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "lexicon not loaded", report.Components["lexicon"].Message)

	ready = true
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHangingCheckTimesOut(t *testing.T) {
	c := NewChecker()
	c.timeout = 20 * time.Millisecond
	c.Register("neo4j", PingCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	}), false))

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["neo4j"].Message, "took longer than")
}
