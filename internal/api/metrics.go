package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	RateLimitHits    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	InsightsEmitted  *prometheus.CounterVec
	registry         *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern for tests)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			RequestCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gastrolytics_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			LatencyHistogram: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gastrolytics_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
			RateLimitHits: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gastrolytics_rate_limit_hits_total",
					Help: "Total number of rate limit hits",
				},
				[]string{"client"},
			),
			CacheHits: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gastrolytics_cache_hits_total",
					Help: "Responses served from the cache",
				},
				[]string{"endpoint"},
			),
			CacheMisses: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gastrolytics_cache_misses_total",
					Help: "Responses computed because the cache had no fresh entry",
				},
				[]string{"endpoint"},
			),
			InsightsEmitted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gastrolytics_insights_emitted_total",
					Help: "Insights emitted per type",
				},
				[]string{"type", "priority"},
			),
			registry: registry,
		}

		registry.MustRegister(m.RequestCounter)
		registry.MustRegister(m.LatencyHistogram)
		registry.MustRegister(m.RateLimitHits)
		registry.MustRegister(m.CacheHits)
		registry.MustRegister(m.CacheMisses)
		registry.MustRegister(m.InsightsEmitted)

		metricsInstance = m
	})

	return metricsInstance
}

// IncrementRequest increments the request counter
func (m *Metrics) IncrementRequest(method, path string, status int) {
	m.RequestCounter.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

// RecordLatency records request latency
func (m *Metrics) RecordLatency(method, path string, seconds float64) {
	m.LatencyHistogram.WithLabelValues(method, path).Observe(seconds)
}

// IncrementRateLimitHit increments rate limit hit counter
func (m *Metrics) IncrementRateLimitHit(client string) {
	m.RateLimitHits.WithLabelValues(client).Inc()
}

// Handler returns the Prometheus metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
