package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/models"
)

var (
	// ErrNotOpen is returned by Send and Close before Open succeeded.
	ErrNotOpen = errors.New("session is not open")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("session is already open")
	// ErrLost is returned by Send once the control plane dropped the connection.
	ErrLost = errors.New("control plane connection lost")
)

// Handler receives every routing request read from the control plane.
type Handler func(req models.RoutingRequest)

// Session is a connection to the control plane.
type Session interface {
	Open(ctx context.Context, handler Handler) error
	Send(ctx context.Context, kind models.MessageType, payload any) error
	Close() error
	// Alive reports whether the session is open and its link is up.
	Alive() bool
}

// Topic returns the MQTT topic for kind under prefix/agentID.
func Topic(prefix, agentID string, kind models.MessageType) (string, error) {
	var leaf string
	switch kind {
	case models.MessageRequest:
		leaf = constants.TopicRequests
	case models.MessageResponse:
		leaf = constants.TopicResponses
	case models.MessageDeviceChange:
		leaf = constants.TopicDevices
	case models.MessageHeartbeat:
		leaf = constants.TopicHeartbeat
	default:
		return "", fmt.Errorf("no topic for message type %q", kind)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, agentID, leaf), nil
}
