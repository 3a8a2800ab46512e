package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Login(ResultSuccess)
	m.Login(ResultRejected)
	m.Login(ResultRejected)
	m.Refresh(ResultSuccess)
	m.StreamConnected()
	m.StreamConnected()
	m.StreamDisconnected()
	m.SampleCollected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.samples))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/stats", http.StatusOK, 15*time.Millisecond)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pidash_http_request_duration_seconds_count")
	assert.Contains(t, string(body), `path="/api/stats"`)
	assert.Contains(t, string(body), "go_goroutines")
}
