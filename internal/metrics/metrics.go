// Package metrics exposes Prometheus instrumentation for campaign runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for wasend.
type Metrics struct {
	MessagesTotal     *prometheus.CounterVec
	MessagesSkipped   prometheus.Counter
	RetriesTotal      prometheus.Counter
	BatchesTotal      prometheus.Counter
	PacingWaitSeconds prometheus.Histogram
	SessionProgress   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasend_messages_total",
				Help: "Messages processed, by kind and result",
			},
			[]string{"kind", "result"},
		),
		MessagesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasend_messages_skipped_total",
				Help: "Messages skipped by the dedup ledger",
			},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasend_retries_total",
				Help: "Transport retry attempts",
			},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasend_batches_total",
				Help: "Batches completed",
			},
		),
		PacingWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wasend_pacing_wait_seconds",
				Help:    "Time spent waiting on the pacing policy before each send",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		SessionProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wasend_session_progress",
				Help: "Completed fraction of the current campaign (0-1)",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.MessagesSkipped,
		m.RetriesTotal,
		m.BatchesTotal,
		m.PacingWaitSeconds,
		m.SessionProgress,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
