package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/pidash/internal/models"
	"github.com/iudanet/pidash/internal/server/metrics"
	"github.com/iudanet/pidash/internal/server/storage"
	"github.com/iudanet/pidash/pkg/api"
)

const (
	// HistoryRetention is how long samples are kept
	HistoryRetention = 7 * 24 * time.Hour

	subscriberBuffer = 16
	pruneEvery       = time.Hour
)

// Sampler periodically collects samples, persists them and broadcasts them
// to stream subscribers. It samples every second while anyone is subscribed
// and backs off to 5, 10, 30 and 60 seconds when idle.
type Sampler struct {
	source  Source
	store   storage.SampleStorage
	metrics *metrics.Metrics
	logger  *slog.Logger
	subs    map[chan api.SystemStats]struct{}
	latest  *api.SystemStats
	tick    time.Duration
	mu      sync.RWMutex
}

// NewSampler creates a sampler. store and m may be nil.
func NewSampler(source Source, store storage.SampleStorage, m *metrics.Metrics, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		source:  source,
		store:   store,
		metrics: m,
		logger:  logger,
		subs:    make(map[chan api.SystemStats]struct{}),
		tick:    time.Second,
	}
}

// NextDelay returns the next sampling interval in ticks
func NextDelay(active bool, current int) int {
	if active {
		return 1
	}
	switch current {
	case 1:
		return 5
	case 5:
		return 10
	case 10:
		return 30
	default:
		return 60
	}
}

// Run samples until ctx is done
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	ticks, delay := 0, 1
	lastPrune := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ticks++
		active := s.Subscribers() > 0
		if active {
			delay = 1
		}
		if ticks < delay {
			continue
		}

		if _, err := s.SampleOnce(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to collect sample", "error", err)
		}
		ticks = 0
		delay = NextDelay(active, delay)

		if time.Since(lastPrune) >= pruneEvery {
			s.prune(ctx)
			lastPrune = time.Now()
		}
	}
}

// SampleOnce collects one sample, stores it and broadcasts it
func (s *Sampler) SampleOnce(ctx context.Context) (api.SystemStats, error) {
	stats, err := s.source.Collect(ctx)
	if err != nil {
		return api.SystemStats{}, err
	}

	if s.metrics != nil {
		s.metrics.SampleCollected()
	}

	if s.store != nil {
		sample := &models.Sample{Timestamp: stats.Timestamp, Point: api.NewHistoryPoint(stats)}
		if err := s.store.SaveSample(ctx, sample); err != nil {
			s.logger.WarnContext(ctx, "failed to persist sample", "error", err)
		}
	}

	s.mu.Lock()
	s.latest = &stats
	for ch := range s.subs {
		select {
		case ch <- stats:
		default:
			// медленный клиент пропускает сэмпл
		}
	}
	s.mu.Unlock()

	return stats, nil
}

// Latest returns the most recent sample
func (s *Sampler) Latest() (api.SystemStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return api.SystemStats{}, false
	}
	return *s.latest, true
}

// Subscribe registers a stream subscriber. The returned cancel func must be called.
func (s *Sampler) Subscribe() (<-chan api.SystemStats, func()) {
	ch := make(chan api.SystemStats, subscriberBuffer)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers
func (s *Sampler) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// History returns stored samples since the given time
func (s *Sampler) History(ctx context.Context, since time.Time) ([]api.HistoryPoint, error) {
	if s.store == nil {
		return []api.HistoryPoint{}, nil
	}

	samples, err := s.store.ListSamples(ctx, since)
	if err != nil {
		return nil, err
	}

	points := make([]api.HistoryPoint, 0, len(samples))
	for _, sample := range samples {
		points = append(points, sample.Point)
	}
	return points, nil
}

func (s *Sampler) prune(ctx context.Context) {
	if s.store == nil {
		return
	}
	n, err := s.store.DeleteSamplesBefore(ctx, time.Now().Add(-HistoryRetention))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to prune samples", "error", err)
		return
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "pruned old samples", "count", n)
	}
}
