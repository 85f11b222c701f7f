package server

import (
	"net/http"
	"time"

	"ppbverify/internal/verify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the verification metrics of one server. Each instance owns its
// registry so tests and multiple servers in one process do not collide.
type Metrics struct {
	verifications *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppb_verifications_total",
				Help: "Total number of verifications by record kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppb_verification_duration_seconds",
				Help:    "Duration of verifications including portal round trips",
				Buckets: []float64{0.005, 0.05, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppb_cache_lookups_total",
				Help: "Total number of cache lookups by record kind and result",
			},
			[]string{"kind", "result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.verifications,
		m.duration,
		m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveVerification(kind verify.Kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(kind), outcome).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCacheLookup(kind verify.Kind, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(string(kind), result).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
