package metrics_collectors

import (
	"context"
	"errors"
	"testing"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(name string, v float64, err error, enabled func(*models.MetricsConfig) bool) *ProbeCollector {
	return &ProbeCollector{
		name:    name,
		enabled: enabled,
		probe:   func(context.Context) (float64, error) { return v, err },
		logger:  zerolog.Nop(),
	}
}

func TestSnapshot_OnlyEnabledAndSuccessful(t *testing.T) {
	r := NewMetricsRegistry()
	r.Register(fixed("cpu", 12.5, nil, func(c *models.MetricsConfig) bool { return c.MonitorCPU }))
	r.Register(fixed("memory", 0, errors.New("no /proc"), func(c *models.MetricsConfig) bool { return c.MonitorMemory }))
	r.Register(fixed("uptime", 300, nil, func(c *models.MetricsConfig) bool { return c.MonitorUptime }))

	got := r.Snapshot(context.Background(), &models.MetricsConfig{MonitorCPU: true, MonitorMemory: true})

	assert.Equal(t, map[string]float64{"cpu": 12.5}, got)
}

func TestSnapshot_NilConfig(t *testing.T) {
	r := NewDefaultRegistry(zerolog.Nop())

	assert.Nil(t, r.Snapshot(context.Background(), nil))
}

func TestDefaultRegistry_Goroutines(t *testing.T) {
	r := NewDefaultRegistry(zerolog.Nop())
	assert.Len(t, r.GetCollectors(), 4)

	c, ok := r.Get("goroutines")
	require.True(t, ok)
	assert.Equal(t, "count", c.Unit())
	assert.False(t, c.IsEnabled(&models.MetricsConfig{}))

	v, ok := c.Collect(context.Background()).(*float64)
	require.True(t, ok)
	assert.Greater(t, *v, 0.0)
}
