// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package observability provides Prometheus metrics for lifecycle operations.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"
)

// Metrics records lifecycle operation outcomes.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CompensationTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the lifecycle metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networkeyes_lifecycle_operations_total",
				Help: "Total number of lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "networkeyes_lifecycle_operation_duration_seconds",
				Help:    "Duration of lifecycle operations",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"operation"},
		),
		CompensationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networkeyes_lifecycle_compensations_total",
				Help: "Total number of compensating actions by action",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.OperationDuration)
	reg.MustRegister(m.CompensationTotal)

	return m
}

// ObserveOperation counts a finished operation and records its duration.
func (m *Metrics) ObserveOperation(operation, result string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordCompensation counts a compensating action such as a rollback.
func (m *Metrics) RecordCompensation(action string) {
	m.CompensationTotal.WithLabelValues(action).Inc()
}

// NewRegistry returns a registry holding the Go runtime and process
// collectors along with the lifecycle metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry, NewMetrics(registry)
}

// WriteTextfile writes the registry in the node exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return oops.Code("METRICS_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
