// Package metrics exposes dev backend counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pidash"

// Результаты auth операций
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds the backend collectors on a private registry
type Metrics struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	requests      *prometheus.HistogramVec
	streamClients prometheus.Gauge
	samples       prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Refresh token exchanges by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket stream clients.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_collected_total",
			Help:      "System samples collected.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.refreshes,
		m.requests,
		m.streamClients,
		m.samples,
	)

	return m
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Login records a login attempt
func (m *Metrics) Login(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// Refresh records a refresh exchange
func (m *Metrics) Refresh(result string) {
	m.refreshes.WithLabelValues(result).Inc()
}

// StreamConnected increments the stream client gauge
func (m *Metrics) StreamConnected() {
	m.streamClients.Inc()
}

// StreamDisconnected decrements the stream client gauge
func (m *Metrics) StreamDisconnected() {
	m.streamClients.Dec()
}

// SampleCollected counts a collected sample
func (m *Metrics) SampleCollected() {
	m.samples.Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
