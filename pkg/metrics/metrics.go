// Package metrics exposes Prometheus instrumentation for the simulation
// engine. Counters are registered on the default registry and served by the
// API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarstream_ticks_total",
		Help: "Total number of dispatcher ticks fired",
	})

	SamplesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarstream_samples_generated_total",
		Help: "Total number of rate samples generated across all accounts",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarstream_persist_failures_total",
		Help: "Total number of per-account persistence failures during ticks",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarstream_events_delivered_total",
		Help: "Total number of events delivered to live subscribers",
	})

	TickSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarstream_tick_skips_total",
		Help: "Ticks skipped for an account because its previous tick was still in flight",
	})

	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solarstream_active_subscribers",
		Help: "Number of live WebSocket subscribers",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solarstream_tick_duration_seconds",
		Help:    "Wall time of one full dispatcher tick across all accounts",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})
)
