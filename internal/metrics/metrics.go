// Package metrics holds the Prometheus collectors shared by the server and worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LevyGenerationsTotal *prometheus.CounterVec
	EmailJobsTotal       *prometheus.CounterVec
	TierLookupsTotal     *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry, together with the Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratum_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratum_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LevyGenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratum_levy_generations_total",
				Help: "Levy generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		EmailJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratum_email_jobs_total",
				Help: "Processed email jobs by template and outcome",
			},
			[]string{"template", "outcome"},
		),
		TierLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratum_tier_lookups_total",
				Help: "Subscription tier lookups by cache result",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LevyGenerationsTotal,
		m.EmailJobsTotal,
		m.TierLookupsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// LevyGeneration records one generation attempt. outcome is "generated", "replaced", "conflict", "invalid" or "error".
func (m *Metrics) LevyGeneration(outcome string) {
	if m == nil {
		return
	}
	m.LevyGenerationsTotal.WithLabelValues(outcome).Inc()
}

// EmailJob records one processed email job.
func (m *Metrics) EmailJob(template, outcome string) {
	if m == nil {
		return
	}
	m.EmailJobsTotal.WithLabelValues(template, outcome).Inc()
}

// TierLookup records a tier cache hit or miss.
func (m *Metrics) TierLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TierLookupsTotal.WithLabelValues(result).Inc()
}
