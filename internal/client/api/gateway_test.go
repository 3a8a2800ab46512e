package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/pkg/api"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) AccessToken() string { return s.token }

// fakeRenewer отдает заранее заданный токен и считает вызовы
type fakeRenewer struct {
	tokens *staticTokens
	next   string
	err    error
	calls  atomic.Int32
}

func (f *fakeRenewer) Renew(context.Context) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	if f.next != "" && f.tokens != nil {
		f.tokens.token = f.next
	}
	return f.next, nil
}

// bearerServer отвечает 200 только на токены из valid и считает запросы
func bearerServer(t *testing.T, valid ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		for _, v := range valid {
			if auth == v {
				_ = json.NewEncoder(w).Encode(api.SystemStats{CPU: api.CPUStats{UsagePercent: 42}})
				return
			}
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestGateway_AttachesBearer(t *testing.T) {
	server, hits := bearerServer(t, "current")
	tokens := &staticTokens{token: "current"}
	renewer := &fakeRenewer{}

	gw := NewGateway(NewClient(server.URL), tokens, renewer)
	stats, err := gw.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, float32(42), stats.CPU.UsagePercent)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(0), renewer.calls.Load())
}

func TestGateway_NoTokenStillSends(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gw := NewGateway(NewClient(server.URL), &staticTokens{}, &fakeRenewer{})
	resp, err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/public"})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", gotAuth.Load())
}

func TestGateway_RetryAfterRenewal(t *testing.T) {
	server, hits := bearerServer(t, "fresh")
	tokens := &staticTokens{token: "expired"}
	renewer := &fakeRenewer{tokens: tokens, next: "fresh"}

	gw := NewGateway(NewClient(server.URL), tokens, renewer)
	stats, err := gw.Stats(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Equal(t, int32(2), hits.Load(), "original + one retry")
	assert.Equal(t, int32(1), renewer.calls.Load())
}

func TestGateway_RenewalFailedSurfacesOriginal(t *testing.T) {
	server, hits := bearerServer(t, "never")
	renewer := &fakeRenewer{}

	gw := NewGateway(NewClient(server.URL), &staticTokens{token: "expired"}, renewer)
	resp, err := gw.Do(context.Background(), Request{Path: "/api/stats"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "no retry without a new token")
	assert.Equal(t, int32(1), renewer.calls.Load())

	_, err = gw.Stats(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGateway_RenewalErrorSurfacesOriginal(t *testing.T) {
	server, hits := bearerServer(t, "never")
	renewer := &fakeRenewer{err: errors.New("disk full")}

	gw := NewGateway(NewClient(server.URL), &staticTokens{token: "expired"}, renewer)
	resp, err := gw.Do(context.Background(), Request{Path: "/api/stats"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGateway_NoDoubleRetry(t *testing.T) {
	// сервер отвергает и новый токен
	server, hits := bearerServer(t, "never")
	tokens := &staticTokens{token: "expired"}
	renewer := &fakeRenewer{tokens: tokens, next: "also-bad"}

	gw := NewGateway(NewClient(server.URL), tokens, renewer)
	_, err := gw.Stats(context.Background())

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), renewer.calls.Load(), "second 401 must not renew again")
}

func TestGateway_RetryReplaysBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "expired"}
	gw := NewGateway(NewClient(server.URL), tokens, &fakeRenewer{tokens: tokens, next: "fresh"})

	resp, err := gw.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/anything",
		Body:   []byte(`{"k":"v"}`),
	})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{`{"k":"v"}`, `{"k":"v"}`}, bodies)
}

func TestGateway_History(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		assert.Equal(t, "week", r.URL.Query().Get("range"))
		_ = json.NewEncoder(w).Encode(api.HistoryResponse{Range: "week", Points: []api.HistoryPoint{{CPUPercent: 1}}})
	}))
	defer server.Close()

	gw := NewGateway(NewClient(server.URL), &staticTokens{token: "t"}, &fakeRenewer{})
	history, err := gw.History(context.Background(), api.RangeWeek)

	require.NoError(t, err)
	assert.Equal(t, "week", history.Range)
	assert.Len(t, history.Points, 1)
}

func TestGateway_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	renewer := &fakeRenewer{}
	gw := NewGateway(NewClient(url), &staticTokens{token: "t"}, renewer)
	_, err := gw.Stats(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), renewer.calls.Load())
}
