package models

import "time"

// Heartbeat is published periodically while the agent holds a control-plane session.
type Heartbeat struct {
	AgentID     string             `json:"agent_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Status      string             `json:"status"`
	State       string             `json:"state"`
	DeviceCount int                `json:"device_count"`
	PortsInUse  int                `json:"ports_in_use"`
	Host        map[string]float64 `json:"host,omitempty"`
}
