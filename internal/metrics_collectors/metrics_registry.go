package metrics_collectors

import (
	"context"
	"sort"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/rs/zerolog"
)

// MetricsRegistry holds the metric collectors attached to heartbeats.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// NewDefaultRegistry registers the cpu, memory, uptime and goroutine collectors.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(NewCPUCollector(logger))
	r.Register(NewMemoryCollector(logger))
	r.Register(NewUptimeCollector(logger))
	r.Register(NewGoroutineCollector(logger))
	return r
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// Get returns the collector registered under name.
func (r *MetricsRegistry) Get(name string) (MetricCollector, bool) {
	c, ok := r.collectors[name]
	return c, ok
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// Snapshot collects every enabled metric. Collectors that fail are left out.
func (r *MetricsRegistry) Snapshot(ctx context.Context, config *models.MetricsConfig) map[string]float64 {
	if config == nil {
		return nil
	}

	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]float64)
	for _, name := range names {
		c := r.collectors[name]
		if !c.IsEnabled(config) {
			continue
		}
		if v, ok := c.Collect(ctx).(*float64); ok && v != nil {
			values[name] = *v
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
