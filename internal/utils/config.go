package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/pkg/file"
)

// ComponentConfig describes how to reach one on-device companion.
type ComponentConfig struct {
	RemotePort    int           `yaml:"remote_port"`     // Port the companion listens on inside the device
	RetryLimit    int           `yaml:"retry_limit"`     // Attempts per connect/request
	RetryDelay    time.Duration `yaml:"retry_delay"`     // Delay between attempts
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"` // Enables exponential backoff when set above retry_delay
	IOTimeout     time.Duration `yaml:"io_timeout"`      // Read/write deadline per attempt
}

// Config represents the structure of the configuration file.
type Config struct {
	Agent struct {
		IdentityFile string `yaml:"identity_file"` // Path to the agent identity file
		LogLevel     string `yaml:"log_level"`     // zerolog level name
	} `yaml:"agent"`

	Ports struct {
		RangeStart int  `yaml:"range_start"` // First local port handed out to forwards
		RangeSize  int  `yaml:"range_size"`  // Number of ports in the pool
		BindCheck  bool `yaml:"bind_check"`  // Skip ports already bound by other processes
	} `yaml:"ports"`

	Bridge struct {
		ADBPath        string        `yaml:"adb_path"`        // Empty resolves from ANDROID_HOME or PATH
		CommandTimeout time.Duration `yaml:"command_timeout"` // Timeout per adb invocation
	} `yaml:"bridge"`

	Devices struct {
		PollInterval     time.Duration `yaml:"poll_interval"`      // Interval between device listings
		OutputSizeLimit  int           `yaml:"output_size_limit"`  // Maximum size of shell output in bytes
		MaxExecutionTime time.Duration `yaml:"max_execution_time"` // Maximum execution time of a shell action
	} `yaml:"devices"`

	Components struct {
		Service    ComponentConfig `yaml:"service"`
		Automation ComponentConfig `yaml:"automation"`
	} `yaml:"components"`

	ControlPlane struct {
		Transport     string `yaml:"transport"`      // mqtt or websocket
		TopicPrefix   string `yaml:"topic_prefix"`   // MQTT topic prefix
		QOS           int    `yaml:"qos"`            // MQTT QoS level
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, enables TLS
		WebSocketPath string `yaml:"websocket_path"` // Path of the websocket endpoint
	} `yaml:"control_plane"`

	Heartbeat struct {
		Enabled  bool                 `yaml:"enabled"`  // Enable/disable heartbeats
		Interval time.Duration        `yaml:"interval"` // Interval between heartbeats
		Metrics  models.MetricsConfig `yaml:"metrics"`  // Host metrics attached to heartbeats
	} `yaml:"heartbeat"`

	Workers struct {
		Count     int `yaml:"count"`      // Background workers for async actions
		QueueSize int `yaml:"queue_size"` // Pending async actions before Submit blocks
	} `yaml:"workers"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Heartbeat.Enabled = true
	cfg.Heartbeat.Metrics = models.MetricsConfig{MonitorCPU: true, MonitorMemory: true, MonitorUptime: true}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Agent.IdentityFile == "" {
		c.Agent.IdentityFile = "agent_identity.json"
	}
	if c.Agent.LogLevel == "" {
		c.Agent.LogLevel = "info"
	}
	if c.Ports.RangeStart == 0 {
		c.Ports.RangeStart = constants.DefaultPortRangeStart
	}
	if c.Ports.RangeSize == 0 {
		c.Ports.RangeSize = constants.DefaultPortRangeSize
	}
	if c.Bridge.CommandTimeout == 0 {
		c.Bridge.CommandTimeout = constants.DefaultBridgeTimeout
	}
	if c.Devices.PollInterval == 0 {
		c.Devices.PollInterval = constants.DefaultDevicePollInterval
	}
	if c.Devices.OutputSizeLimit == 0 {
		c.Devices.OutputSizeLimit = constants.DefaultOutputSizeLimit
	}
	if c.Devices.MaxExecutionTime == 0 {
		c.Devices.MaxExecutionTime = constants.DefaultMaxExecutionTime
	}
	applyComponentDefaults(&c.Components.Service, constants.DefaultServiceRemotePort)
	applyComponentDefaults(&c.Components.Automation, constants.DefaultAutomationRemotePort)
	if c.ControlPlane.Transport == "" {
		c.ControlPlane.Transport = constants.TransportMQTT
	}
	if c.ControlPlane.TopicPrefix == "" {
		c.ControlPlane.TopicPrefix = constants.DefaultTopicPrefix
	}
	if c.ControlPlane.QOS == 0 {
		c.ControlPlane.QOS = constants.DefaultQOS
	}
	if c.ControlPlane.ClientID == "" {
		c.ControlPlane.ClientID = "grid-agent"
	}
	if c.ControlPlane.WebSocketPath == "" {
		c.ControlPlane.WebSocketPath = constants.DefaultWebSocketPath
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = constants.DefaultHeartbeatInterval
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = constants.DefaultWorkerCount
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = constants.DefaultWorkerQueueSize
	}
}

func applyComponentDefaults(cc *ComponentConfig, remotePort int) {
	if cc.RemotePort == 0 {
		cc.RemotePort = remotePort
	}
	if cc.RetryLimit == 0 {
		cc.RetryLimit = constants.DefaultRetryLimit
	}
	if cc.RetryDelay == 0 {
		cc.RetryDelay = constants.DefaultRetryDelay
	}
	if cc.IOTimeout == 0 {
		cc.IOTimeout = constants.DefaultIOTimeout
	}
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error

	end := c.Ports.RangeStart + c.Ports.RangeSize - 1
	if c.Ports.RangeStart < constants.MinTCPPort || end > constants.MaxTCPPort || c.Ports.RangeSize < 1 {
		errs = append(errs, fmt.Errorf("ports: range [%d, %d] is invalid", c.Ports.RangeStart, end))
	}
	for name, cc := range map[string]ComponentConfig{
		"service":    c.Components.Service,
		"automation": c.Components.Automation,
	} {
		if cc.RemotePort < constants.MinTCPPort || cc.RemotePort > constants.MaxTCPPort {
			errs = append(errs, fmt.Errorf("components.%s: remote_port %d is invalid", name, cc.RemotePort))
		}
		if cc.RetryLimit < 1 {
			errs = append(errs, fmt.Errorf("components.%s: retry_limit must be at least 1", name))
		}
	}
	switch c.ControlPlane.Transport {
	case constants.TransportMQTT, constants.TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("control_plane: unknown transport %q", c.ControlPlane.Transport))
	}
	if c.ControlPlane.QOS < 0 || c.ControlPlane.QOS > 2 {
		errs = append(errs, fmt.Errorf("control_plane: qos %d is invalid", c.ControlPlane.QOS))
	}
	if c.Workers.Count < 1 {
		errs = append(errs, errors.New("workers: count must be at least 1"))
	}

	return errors.Join(errs...)
}
