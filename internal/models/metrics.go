package models

// MetricsConfig selects which host metrics are attached to heartbeats.
type MetricsConfig struct {
	MonitorCPU        bool `yaml:"cpu"`
	MonitorMemory     bool `yaml:"memory"`
	MonitorUptime     bool `yaml:"uptime"`
	MonitorGoroutines bool `yaml:"goroutines"`
}
