// Package metrics exposes Prometheus counters and histograms for save and
// restore runs. Metrics are written to a node_exporter textfile after a run
// since repovault is a short-lived command.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repovault"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	entityRuns     *prometheus.CounterVec
	entityDuration *prometheus.HistogramVec
	items          *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// New creates collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Save and restore runs by final status.",
		}, []string{"operation", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of save and restore runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"operation"}),
		entityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "runs_total",
			Help:      "Entity executions by final state.",
		}, []string{"operation", "entity", "status"}),
		entityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "duration_seconds",
			Help:      "Wall time of a single entity's strategy.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation", "entity"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "items_total",
			Help:      "Items processed per entity, by outcome.",
		}, []string{"operation", "entity", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful run.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.runs, m.runDuration, m.entityRuns, m.entityDuration, m.items, m.lastSuccess)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// EntityFinished records one entity's final state and duration.
func (m *Metrics) EntityFinished(op, entity, status string, d time.Duration) {
	m.entityRuns.WithLabelValues(op, entity, status).Inc()
	if d > 0 {
		m.entityDuration.WithLabelValues(op, entity).Observe(d.Seconds())
	}
}

// Items adds n items with the given outcome ("processed", "skipped",
// "overwritten" or "renamed").
func (m *Metrics) Items(op, entity, outcome string, n int) {
	if n > 0 {
		m.items.WithLabelValues(op, entity, outcome).Add(float64(n))
	}
}

// RunFinished records a run's final status.
func (m *Metrics) RunFinished(op, status string, d time.Duration, finished time.Time) {
	m.runs.WithLabelValues(op, status).Inc()
	m.runDuration.WithLabelValues(op).Observe(d.Seconds())
	if status == "success" {
		m.lastSuccess.WithLabelValues(op).Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the current values in the text exposition format,
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
