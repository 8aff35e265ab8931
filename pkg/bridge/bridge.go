// Package bridge wraps the host-side device bridge that executes primitive
// operations (shell, file transfer, port forwarding) against attached devices.
package bridge

import (
	"context"
	"fmt"
)

// Device states as reported by the bridge.
const (
	StateDevice       = "device"
	StateOffline      = "offline"
	StateUnauthorized = "unauthorized"
)

// DeviceState is one entry of the bridge's device listing.
type DeviceState struct {
	Serial string
	State  string
}

// Online reports whether the device accepts commands.
func (d DeviceState) Online() bool {
	return d.State == StateDevice
}

// Bridge is the set of primitive device operations the agent depends on.
// Every call is synchronous and may fail with an *Error.
type Bridge interface {
	Devices(ctx context.Context) ([]DeviceState, error)
	CreateForward(ctx context.Context, serial string, localPort, remotePort int) error
	RemoveForward(ctx context.Context, serial string, localPort int) error
	Shell(ctx context.Context, serial, command string) (string, error)
	Push(ctx context.Context, serial, localPath, remotePath string) error
	Pull(ctx context.Context, serial, remotePath, localPath string) error
	GetProp(ctx context.Context, serial, key string) (string, error)
}

// Error describes a failed bridge invocation.
type Error struct {
	Op     string
	Serial string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("bridge %s", e.Op)
	if e.Serial != "" {
		msg += " on " + e.Serial
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
