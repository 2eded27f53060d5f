// Package metrics provides Prometheus metrics for the sync core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	MutationsTotal   *prometheus.CounterVec
	RefetchesTotal   *prometheus.CounterVec
	StalePushesTotal prometheus.Counter
	ReconnectsTotal  prometheus.Counter
	StreamClients    prometheus.Gauge
	PresenceUsers    prometheus.Gauge
	ReplaceDuration  prometheus.Histogram
	ErrorsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftboard_mutations_total",
				Help: "Board mutations by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		RefetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftboard_refetches_total",
				Help: "Snapshot refetches by trigger (push, conflict, manual).",
			},
			[]string{"trigger"},
		),
		StalePushesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "driftboard_stale_pushes_total",
				Help: "Push events dropped for carrying a stale timestamp.",
			},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "driftboard_stream_reconnects_total",
				Help: "Event stream reconnect attempts.",
			},
		),
		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "driftboard_stream_clients",
				Help: "Currently connected stream subscribers.",
			},
		),
		PresenceUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "driftboard_presence_users",
				Help: "Users currently tracked by the presence tracker.",
			},
		),
		ReplaceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "driftboard_replace_duration_seconds",
				Help:    "Whole-document board replace duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftboard_errors_total",
				Help: "Total errors by component and type.",
			},
			[]string{"component", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.MutationsTotal)
	reg.MustRegister(m.RefetchesTotal)
	reg.MustRegister(m.StalePushesTotal)
	reg.MustRegister(m.ReconnectsTotal)
	reg.MustRegister(m.StreamClients)
	reg.MustRegister(m.PresenceUsers)
	reg.MustRegister(m.ReplaceDuration)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordMutation increments the mutation counter.
func (m *Metrics) RecordMutation(op, outcome string) {
	m.MutationsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordRefetch increments the refetch counter.
func (m *Metrics) RecordRefetch(trigger string) {
	m.RefetchesTotal.WithLabelValues(trigger).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errType string) {
	m.ErrorsTotal.WithLabelValues(component, errType).Inc()
}
