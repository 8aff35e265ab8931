package constants

import "time"

// Local port pool
const (
	DefaultPortRangeStart = 50000
	DefaultPortRangeSize  = 1000
	MinTCPPort            = 1
	MaxTCPPort            = 65535
)

// On-device components
const (
	ComponentService    = "service"
	ComponentAutomation = "automation"

	DefaultServiceRemotePort    = 7000
	DefaultAutomationRemotePort = 7100

	DefaultRetryLimit = 5
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultIOTimeout  = 10 * time.Second
)

// Device layer
const (
	DefaultDevicePollInterval = 2 * time.Second
	DefaultBridgeTimeout      = 15 * time.Second
	DefaultHeartbeatInterval  = 10 * time.Second
	DefaultWorkerCount        = 8
	DefaultWorkerQueueSize    = 64
)

// Control plane
const (
	TransportMQTT      = "mqtt"
	TransportWebSocket = "websocket"

	DefaultTopicPrefix   = "grid/agents"
	DefaultWebSocketPath = "/ws/agent"
	DefaultQOS           = 1

	TopicRequests  = "requests"
	TopicResponses = "responses"
	TopicDevices   = "devices"
	TopicHeartbeat = "heartbeat"
)
