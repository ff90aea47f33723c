// Package metrics exposes Prometheus counters/gauges over the pipeline,
// registered only when system.enable_telemetry is set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the telemetry surface the Orchestrator and Scheduler report
// into. A zero-value Metrics (Enabled == false) makes every Record/Set
// method a no-op, so callers never need to guard on enable_telemetry
// themselves once they hold a *Metrics.
type Metrics struct {
	Enabled bool

	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	bytesSaved    prometheus.Counter
	activeJobs    prometheus.Gauge

	registry *prometheus.Registry
}

// New builds a Metrics. When enabled is false, the returned Metrics has no
// backing collectors and every method is a no-op.
func New(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{Enabled: false}
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		Enabled:  true,
		registry: registry,
		jobsCompleted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alchemist_jobs_completed_total",
			Help: "Total number of jobs that reached the completed state.",
		}),
		jobsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alchemist_jobs_failed_total",
			Help: "Total number of jobs that reached the failed state.",
		}),
		bytesSaved: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alchemist_bytes_saved_total",
			Help: "Cumulative bytes saved by completed re-encodes (input size minus output size).",
		}),
		activeJobs: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "alchemist_active_jobs",
			Help: "Number of jobs currently in flight in the scheduler.",
		}),
	}
	return m
}

// RecordCompleted increments jobs_completed_total and adds to
// bytes_saved_total.
func (m *Metrics) RecordCompleted(bytesSaved int64) {
	if !m.Enabled {
		return
	}
	m.jobsCompleted.Inc()
	if bytesSaved > 0 {
		m.bytesSaved.Add(float64(bytesSaved))
	}
}

// RecordFailed increments jobs_failed_total.
func (m *Metrics) RecordFailed() {
	if !m.Enabled {
		return
	}
	m.jobsFailed.Inc()
}

// SetActiveJobs sets the active_jobs gauge to n.
func (m *Metrics) SetActiveJobs(n int) {
	if !m.Enabled {
		return
	}
	m.activeJobs.Set(float64(n))
}

// Handler returns the /metrics HTTP handler. Returns a 404 handler when
// telemetry is disabled, since nothing is registered to serve.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
