package handlers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/internal/server/storage/sqlite"
	"github.com/iudanet/pidash/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:          []byte("test-secret-key"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

// fakeStats реализует StatsSource
type fakeStats struct {
	latest    *api.SystemStats
	history   []api.HistoryPoint
	since     time.Time
	subs      chan api.SystemStats
	err       error
	collected int
	mu        sync.Mutex
}

func newFakeStats() *fakeStats {
	return &fakeStats{subs: make(chan api.SystemStats, 4)}
}

func (f *fakeStats) Latest() (api.SystemStats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return api.SystemStats{}, false
	}
	return *f.latest, true
}

func (f *fakeStats) SampleOnce(_ context.Context) (api.SystemStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return api.SystemStats{}, f.err
	}
	f.collected++
	stats := api.SystemStats{Timestamp: time.Now(), CPU: api.CPUStats{UsagePercent: 12.5}}
	f.latest = &stats
	return stats, nil
}

func (f *fakeStats) History(_ context.Context, since time.Time) ([]api.HistoryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.history, f.err
}

func (f *fakeStats) Subscribe() (<-chan api.SystemStats, func()) {
	return f.subs, func() {}
}
