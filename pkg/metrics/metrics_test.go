package metrics

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.HitsTotal.WithLabelValues("Name").Add(3)
	m.AutosearchTotal.WithLabelValues("cached").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HitsTotal.WithLabelValues("Name")))
	n, err := testutil.GatherAndCount(reg, "mapper_hits_total", "autosearch_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Panics(t, func() { New(reg) }, "collectors register once per registry")
}

func TestServe(t *testing.T) {
	srv, err := Serve(0)
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	_, err = Serve(portOf(t, srv.Addr()))
	assert.Error(t, err, "port already bound")
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}
