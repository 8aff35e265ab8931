package metrics_collectors

import (
	"context"
	"errors"
	"runtime"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// ProbeCollector adapts a single float probe to MetricCollector.
type ProbeCollector struct {
	name        string
	unit        string
	description string
	enabled     func(*models.MetricsConfig) bool
	probe       func(ctx context.Context) (float64, error)
	logger      zerolog.Logger
}

func (p *ProbeCollector) Name() string {
	return p.name
}

// Collect runs the probe and returns a *float64, or nil when it failed.
func (p *ProbeCollector) Collect(ctx context.Context) interface{} {
	v, err := p.probe(ctx)
	if err != nil {
		p.logger.Error().Err(err).Str("metric", p.name).Msg("Failed to collect metric")
		return nil
	}
	p.logger.Debug().Str("metric", p.name).Float64("value", v).Msg("Metric collected")
	return &v
}

func (p *ProbeCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config != nil && p.enabled(config)
}

func (p *ProbeCollector) Unit() string {
	return p.unit
}

func (p *ProbeCollector) Description() string {
	return p.description
}

// NewCPUCollector reports CPU utilization across all cores.
func NewCPUCollector(logger zerolog.Logger) *ProbeCollector {
	return &ProbeCollector{
		name:        "cpu",
		unit:        "percentage",
		description: "Percentage of CPU utilization across all cores.",
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorCPU },
		probe: func(ctx context.Context) (float64, error) {
			percentages, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return 0, err
			}
			if len(percentages) == 0 {
				return 0, errors.New("cpu usage data is empty")
			}
			return percentages[0], nil
		},
		logger: logger,
	}
}

// NewMemoryCollector reports the share of used virtual memory.
func NewMemoryCollector(logger zerolog.Logger) *ProbeCollector {
	return &ProbeCollector{
		name:        "memory",
		unit:        "percentage",
		description: "Percentage of used virtual memory.",
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorMemory },
		probe: func(ctx context.Context) (float64, error) {
			stats, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return stats.UsedPercent, nil
		},
		logger: logger,
	}
}

// NewUptimeCollector reports the seconds since the host booted.
func NewUptimeCollector(logger zerolog.Logger) *ProbeCollector {
	return &ProbeCollector{
		name:        "uptime",
		unit:        "seconds",
		description: "Seconds since the host booted.",
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorUptime },
		probe: func(ctx context.Context) (float64, error) {
			seconds, err := host.UptimeWithContext(ctx)
			return float64(seconds), err
		},
		logger: logger,
	}
}

// NewGoroutineCollector reports the number of goroutines of the agent.
func NewGoroutineCollector(logger zerolog.Logger) *ProbeCollector {
	return &ProbeCollector{
		name:        "goroutines",
		unit:        "count",
		description: "Number of active goroutines in the runtime.",
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorGoroutines },
		probe: func(context.Context) (float64, error) {
			return float64(runtime.NumGoroutine()), nil
		},
		logger: logger,
	}
}
