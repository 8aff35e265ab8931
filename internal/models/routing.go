package models

import "encoding/json"

// RoutingRequest is a command sent by the control plane to be executed
// against a specific device's wrapper.
type RoutingRequest struct {
	Action        string   `json:"action"`         // Opaque operation identifier
	DeviceID      string   `json:"device_id"`      // Target device serial
	Arguments     []string `json:"arguments"`      // Positional action arguments
	CorrelationID string   `json:"correlation_id"` // Links the reply to this request
	Async         bool     `json:"async"`          // Run in the background, reply only on failure
	Notify        bool     `json:"notify"`         // Async only: also reply on success
}

// RoutingResponse is the reply to a RoutingRequest. Exactly one of Result or
// Error is set.
type RoutingResponse struct {
	CorrelationID string           `json:"correlation_id"`
	DeviceID      string           `json:"device_id,omitempty"`
	Action        string           `json:"action,omitempty"`
	Result        json.RawMessage  `json:"result,omitempty"`
	Error         *ErrorDescriptor `json:"error,omitempty"`
}

// ErrorDescriptor is the wire form of a failed request.
type ErrorDescriptor struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	DeviceID  string `json:"device_id,omitempty"`
	Component string `json:"component,omitempty"`
}

// DeviceChange is pushed unprompted when a device attaches or detaches.
type DeviceChange struct {
	DeviceID  string      `json:"device_id"`
	Connected bool        `json:"connected"`
	Info      *DeviceInfo `json:"device_info,omitempty"`
}

// MessageType tags envelopes exchanged with the control plane.
type MessageType string

const (
	MessageRequest      MessageType = "request"
	MessageResponse     MessageType = "response"
	MessageDeviceChange MessageType = "device_change"
	MessageHeartbeat    MessageType = "heartbeat"
)

// Envelope frames messages on transports without per-type topics.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
