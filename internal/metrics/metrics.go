// Package metrics exposes Prometheus collectors for the snapshot engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snapkeep"

// ServiceName is the AppContext service key of the process-wide Metrics.
const ServiceName = "metrics"

// Metrics groups every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	activeTasks      prometheus.Gauge
	skippedFirings   prometheus.Counter
	retentionDeleted prometheus.Counter
}

// New registers the engine collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Schedule executions by artifact kind and outcome.",
		}, []string{"kind", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of schedule executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Schedules currently registered with the cron runner.",
		}),
		skippedFirings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_firings_total",
			Help:      "Firings dropped because the same schedule was still running.",
		}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Artifacts removed by retention.",
		}),
	}
	reg.MustRegister(
		m.runs,
		m.runDuration,
		m.activeTasks,
		m.skippedFirings,
		m.retentionDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records one finished execution.
func (m *Metrics) ObserveRun(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetActiveTasks records the registry size.
func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.activeTasks.Set(float64(n))
}

// IncSkipped counts a firing dropped by the overlap guard.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.skippedFirings.Inc()
}

// AddRetentionDeleted counts artifacts pruned by retention.
func (m *Metrics) AddRetentionDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionDeleted.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
