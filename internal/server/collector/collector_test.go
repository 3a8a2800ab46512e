package collector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/internal/models"
	"github.com/iudanet/pidash/internal/server/metrics"
	"github.com/iudanet/pidash/pkg/api"
)

type fakeSource struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeSource) Collect(_ context.Context) (api.SystemStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return api.SystemStats{}, f.err
	}
	return api.SystemStats{
		Timestamp: time.Now().UTC(),
		CPU:       api.CPUStats{UsagePercent: float32(f.calls)},
		Memory:    api.MemoryStats{UsagePercent: 40},
		Disk:      api.DiskStats{UsagePercent: 70},
	}, nil
}

type fakeSampleStore struct {
	samples []*models.Sample
	mu      sync.Mutex
}

func (f *fakeSampleStore) SaveSample(_ context.Context, sample *models.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeSampleStore) ListSamples(_ context.Context, since time.Time) ([]*models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Sample
	for _, s := range f.samples {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSampleStore) DeleteSamplesBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.samples[:0]
	n := 0
	for _, s := range f.samples {
		if s.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	f.samples = kept
	return n, nil
}

func TestGroupTemperatures(t *testing.T) {
	groups := GroupTemperatures([]Reading{
		{Label: "nvme_composite", Celsius: 41.26},
		{Label: "coretemp_core_0", Celsius: 50},
		{Label: "coretemp_core_1", Celsius: 55.04},
		{Label: "acpitz", Celsius: 30},
		{Label: "mystery", Celsius: 20},
		{Label: "cpu_thermal", Celsius: 200},
		{Label: "gpu_edge", Celsius: -50},
	})

	require.Len(t, groups, 4)
	assert.Equal(t, api.TempGroup{Label: "CPU", Temperature: 55}, groups[0])
	assert.Equal(t, api.TempGroup{Label: "NVMe", Temperature: 41.3}, groups[1])
	assert.Equal(t, "Board", groups[2].Label)
	assert.Equal(t, "Other", groups[3].Label)

	temp := cpuTemperature(groups)
	require.NotNil(t, temp)
	assert.InDelta(t, 55, *temp, 0.01)
}

func TestGroupTemperatures_Empty(t *testing.T) {
	groups := GroupTemperatures(nil)
	assert.Empty(t, groups)
	assert.Nil(t, cpuTemperature(groups))
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name    string
		active  bool
		current int
		want    int
	}{
		{"active resets", true, 60, 1},
		{"first idle step", false, 1, 5},
		{"second idle step", false, 5, 10},
		{"third idle step", false, 10, 30},
		{"fourth idle step", false, 30, 60},
		{"stays at max", false, 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDelay(tt.active, tt.current))
		})
	}
}

func TestSampler_SampleOnce(t *testing.T) {
	src := &fakeSource{}
	store := &fakeSampleStore{}
	m := metrics.New()
	s := NewSampler(src, store, m, nil)

	_, ok := s.Latest()
	assert.False(t, ok)

	ch, cancel := s.Subscribe()
	defer cancel()

	stats, err := s.SampleOnce(context.Background())
	require.NoError(t, err)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, stats, latest)

	select {
	case got := <-ch:
		assert.Equal(t, stats, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive sample")
	}

	require.Len(t, store.samples, 1)
	assert.InDelta(t, 40, store.samples[0].Point.MemPercent, 0.01)
	expected := `
# HELP pidash_samples_collected_total System samples collected.
# TYPE pidash_samples_collected_total counter
pidash_samples_collected_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pidash_samples_collected_total"))
}

func TestSampler_SampleOnceError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	store := &fakeSampleStore{}
	s := NewSampler(src, store, nil, nil)

	_, err := s.SampleOnce(context.Background())
	require.Error(t, err)

	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Empty(t, store.samples)
}

func TestSampler_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil, nil, nil)
	_, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_, _ = s.SampleOnce(context.Background())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sampling blocked on a slow subscriber")
	}
}

func TestSampler_Unsubscribe(t *testing.T) {
	s := NewSampler(&fakeSource{}, nil, nil, nil)

	_, cancel1 := s.Subscribe()
	_, cancel2 := s.Subscribe()
	assert.Equal(t, 2, s.Subscribers())

	cancel1()
	cancel1()
	assert.Equal(t, 1, s.Subscribers())

	cancel2()
	assert.Equal(t, 0, s.Subscribers())
}

func TestSampler_History(t *testing.T) {
	store := &fakeSampleStore{}
	now := time.Now()
	store.samples = []*models.Sample{
		{Timestamp: now.Add(-2 * time.Hour), Point: api.HistoryPoint{CPUPercent: 1}},
		{Timestamp: now.Add(-time.Minute), Point: api.HistoryPoint{CPUPercent: 2}},
	}
	s := NewSampler(&fakeSource{}, store, nil, nil)

	points, err := s.History(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 2, points[0].CPUPercent, 0.01)

	s = NewSampler(&fakeSource{}, nil, nil, nil)
	points, err = s.History(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestSampler_Prune(t *testing.T) {
	store := &fakeSampleStore{}
	store.samples = []*models.Sample{
		{Timestamp: time.Now().Add(-HistoryRetention - time.Hour)},
		{Timestamp: time.Now()},
	}
	s := NewSampler(&fakeSource{}, store, nil, nil)

	s.prune(context.Background())
	assert.Len(t, store.samples, 1)
}

func TestSampler_RunSamplesWhileSubscribed(t *testing.T) {
	src := &fakeSource{}
	s := NewSampler(src, nil, nil, nil)
	s.tick = 5 * time.Millisecond

	ch, cancel := s.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("no sample received")
		}
	}

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
