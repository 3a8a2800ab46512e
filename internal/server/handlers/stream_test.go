package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/internal/server/metrics"
	"github.com/iudanet/pidash/pkg/api"
)

func TestStreamHandler_PushesSamples(t *testing.T) {
	src := newFakeStats()
	first := api.SystemStats{Timestamp: time.Now().UTC().Truncate(time.Second), CPU: api.CPUStats{UsagePercent: 10}}
	src.latest = &first

	m := metrics.New()
	handler := NewStreamHandler(setupTestLogger(), src, m)

	server := httptest.NewServer(http.HandlerFunc(handler.Stream))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	var got api.SystemStats
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.InDelta(t, 10, got.CPU.UsagePercent, 0.01)

	src.subs <- api.SystemStats{Timestamp: time.Now().UTC(), CPU: api.CPUStats{UsagePercent: 20}}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.InDelta(t, 20, got.CPU.UsagePercent, 0.01)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool {
		families, err := m.Registry().Gather()
		if err != nil {
			return false
		}
		for _, mf := range families {
			if mf.GetName() == "pidash_stream_clients" {
				return mf.GetMetric()[0].GetGauge().GetValue() == 0
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStreamHandler_RejectsPlainHTTP(t *testing.T) {
	handler := NewStreamHandler(setupTestLogger(), newFakeStats(), nil)

	w := httptest.NewRecorder()
	handler.Stream(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
}
