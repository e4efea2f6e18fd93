// Package telemetry exposes Prometheus metrics for job/reconciler runs,
// narrowed from DukeRupert-freyja's business_metrics.go shape (namespaced
// CounterVec/HistogramVec fields created via promauto, a package-level
// instance wired once at startup) down to the handful of counters a
// reconciliation engine's operators actually watch.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunMetrics tracks job and reconciler pass outcomes.
type RunMetrics struct {
	RunsStarted  *prometheus.CounterVec
	RunsSucceeded *prometheus.CounterVec
	RunsFailed    *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// NewRunMetrics registers the run-tracking metrics under namespace.
func NewRunMetrics(namespace string) *RunMetrics {
	if namespace == "" {
		namespace = "sub002"
	}
	subsystem := "run"

	return &RunMetrics{
		RunsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "started_total",
				Help:      "Total job/reconciler runs started",
			},
			[]string{"job"},
		),
		RunsSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "succeeded_total",
				Help:      "Total job/reconciler runs completed without error",
			},
			[]string{"job"},
		),
		RunsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failed_total",
				Help:      "Total job/reconciler runs that returned an error",
			},
			[]string{"job"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Job/reconciler run duration",
				Buckets:   []float64{.5, 1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"job"},
		),
	}
}

// Global is the process-wide instance wired once in cmd/reconciler/main.go.
var Global *RunMetrics

// Init creates and assigns Global.
func Init(namespace string) *RunMetrics {
	Global = NewRunMetrics(namespace)
	return Global
}
