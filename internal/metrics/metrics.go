// Package metrics содержит Prometheus метрики сервиса.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "movies"
)

// Manager владеет собственным реестром, чтобы тесты могли создавать независимые экземпляры.
type Manager struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	externalAPIRequests *prometheus.CounterVec
	rankingRecomputes   prometheus.Counter
	moviesTotal         prometheus.Gauge
}

// NewManager регистрирует все метрики в новом реестре.
func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		externalAPIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_api_requests_total",
			Help:      "Calls to the movie metadata API by operation and outcome.",
		}, []string{"operation", "outcome"}),
		rankingRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_recomputes_total",
			Help:      "Number of full ranking recomputations.",
		}),
		moviesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "movies_total",
			Help:      "Number of movies seen at the last list render.",
		}),
	}
	reg.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.externalAPIRequests,
		m.rankingRecomputes,
		m.moviesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Manager) RecordHTTPRequest(route, method, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordExternalCall подходит как clients.Observer.
func (m *Manager) RecordExternalCall(operation, outcome string) {
	m.externalAPIRequests.WithLabelValues(operation, outcome).Inc()
}

func (m *Manager) RecordRankingRecompute(movieCount int) {
	m.rankingRecomputes.Inc()
	m.moviesTotal.Set(float64(movieCount))
}

// Handler отдает метрики в формате Prometheus.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам для чтения значений.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
