package metrics_collectors

import (
	"context"

	"github.com/benmeehan/grid-agent/internal/models"
)

// MetricCollector defines the interface for collecting a specific host metric.
type MetricCollector interface {
	Name() string                                // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) interface{}     // Collect the metric data, nil on failure
	IsEnabled(config *models.MetricsConfig) bool // Check if the metric is enabled in the config
	Unit() string                                // Unit of the metric (e.g., "percentage", "seconds")
	Description() string                         // Description of the metric
}
