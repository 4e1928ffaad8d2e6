// Package metrics collects evaluation run metrics with Prometheus.
//
// A run is a batch job, so metrics are exported through the node-exporter
// textfile collector instead of a scrape endpoint.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Collector holds the run metrics on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	taskEvaluationsTotal   *prometheus.CounterVec
	taskEvaluationDuration *prometheus.HistogramVec
	backendLoadDuration    *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector. A nil logger discards output.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.taskEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plmteb",
			Name:      "task_evaluations_total",
			Help:      "Total number of (model, task) evaluations",
		},
		[]string{"model", "task", "status"},
	)

	c.taskEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plmteb",
			Name:      "task_evaluation_duration_seconds",
			Help:      "Duration of one (model, task) evaluation in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"model", "task"},
	)

	c.backendLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plmteb",
			Name:      "backend_load_duration_seconds",
			Help:      "Time to construct and load a model backend in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"model_type"},
	)

	c.registry.MustRegister(c.taskEvaluationsTotal, c.taskEvaluationDuration, c.backendLoadDuration)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordTaskEvaluation records one (model, task) evaluation.
// Skipped pairs are counted but not timed.
func (c *Collector) RecordTaskEvaluation(model, task, status string, duration time.Duration) {
	c.taskEvaluationsTotal.WithLabelValues(model, task, status).Inc()
	if status != StatusSkipped {
		c.taskEvaluationDuration.WithLabelValues(model, task).Observe(duration.Seconds())
	}
}

// RecordBackendLoad records how long a backend took to become ready.
func (c *Collector) RecordBackendLoad(modelType string, duration time.Duration) {
	c.backendLoadDuration.WithLabelValues(modelType).Observe(duration.Seconds())
}

// WriteTextfile writes the registry in text exposition format to path.
func (c *Collector) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
