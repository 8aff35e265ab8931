package constants

import "time"

const (
	DefaultOutputSizeLimit  = 1024 * 1024 // 1MB
	DefaultMaxExecutionTime = 30 * time.Second
)

// Companion request kinds
const (
	// RequestValidation is the handshake sentinel echoed back by a live companion
	RequestValidation = "VALIDATION"
	// RequestPing is answered with ResponsePong
	RequestPing  = "PING"
	ResponsePong = "PONG"

	RequestBatteryState  = "BATTERY_STATE"
	RequestDeviceStatus  = "DEVICE_STATUS"
	RequestPlayGesture   = "PLAY_GESTURE"
	RequestDumpHierarchy = "DUMP_HIERARCHY"
)

// Heartbeat statuses
const (
	StatusAlive = "alive"
	StatusIdle  = "idle"
)
