// Package observability provides metrics and monitoring capabilities for the
// consolidation service.
package observability

import (
	"fmt"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry      *prometheus.Registry
	Consolidation *metrics.ConsolidationMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	consolidationMetrics, err := metrics.NewConsolidationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create consolidation metrics: %w", err)
	}

	return &Metrics{
		registry:      registry,
		Consolidation: consolidationMetrics,
	}, nil
}

// Registry exposes the underlying Prometheus registry for an HTTP handler or
// a push gateway.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
