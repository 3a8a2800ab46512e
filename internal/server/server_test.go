package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/pkg/api"
)

type staticSource struct{}

func (staticSource) Collect(_ context.Context) (api.SystemStats, error) {
	return api.SystemStats{
		Timestamp: time.Now().UTC(),
		CPU:       api.CPUStats{UsagePercent: 42},
		Memory:    api.MemoryStats{UsagePercent: 50},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "pidash.db")
	cfg.Password = "s3cret"
	cfg.Secret = []byte("test-secret")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(context.Background(), cfg, logger, WithSource(staticSource{}))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, ts *httptest.Server) api.TokenResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/login", api.LoginRequest{Username: "admin", Password: "s3cret"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens api.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	return tokens
}

func getWithToken(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/api/stats", "/api/history", "/ws"} {
		resp := getWithToken(t, ts.URL+path, "")
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestServer_StatsAndHistory(t *testing.T) {
	s, ts := newTestServer(t)
	tokens := login(t, ts)

	resp := getWithToken(t, ts.URL+"/api/stats", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats api.SystemStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	assert.InDelta(t, 42, stats.CPU.UsagePercent, 0.01)

	_, err := s.Sampler().SampleOnce(context.Background())
	require.NoError(t, err)

	resp = getWithToken(t, ts.URL+"/api/history?range=raw", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history api.HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	_ = resp.Body.Close()
	assert.Equal(t, api.RangeRaw, history.Range)
	assert.GreaterOrEqual(t, len(history.Points), 1)
}

func TestServer_RefreshRotation(t *testing.T) {
	_, ts := newTestServer(t)
	first := login(t, ts)

	resp := postJSON(t, ts.URL+"/api/refresh", api.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second api.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	_ = resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/refresh", api.RefreshRequest{RefreshToken: first.RefreshToken})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "rotated token is single-use")

	resp = getWithToken(t, ts.URL+"/api/auth", second.AccessToken)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stream(t *testing.T) {
	s, ts := newTestServer(t)
	tokens := login(t, ts)

	_, err := s.Sampler().SampleOnce(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + tokens.AccessToken
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	var got api.SystemStats
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.InDelta(t, 42, got.CPU.UsagePercent, 0.01)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)
	login(t, ts)

	resp := getWithToken(t, ts.URL+"/healthz", "")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getWithToken(t, ts.URL+"/metrics", "")
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `pidash_logins_total{result="success"} 1`)
	assert.Contains(t, string(body), `path="POST /api/login"`)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "pidash.db")
	cfg.Addr = "127.0.0.1:0"

	s, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithSource(staticSource{}))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
