package agenterr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/grid-agent/internal/models"
)

// Kind classifies a failure of the device communication layer.
type Kind string

const (
	KindPortExhausted             Kind = "port_exhausted"
	KindForwardingFailed          Kind = "forwarding_failed"
	KindForwardRemovalFailed      Kind = "forward_removal_failed"
	KindComponentValidationFailed Kind = "component_validation_failed"
	KindCommunicationFailed       Kind = "communication_failed"
	KindUnknownDevice             Kind = "unknown_device"
	KindIllegalCommand            Kind = "illegal_command"
	KindUnknownAction             Kind = "unknown_action"
	KindActionFailed              Kind = "action_failed"
)

// Sentinels for errors.Is. Matching is done on Kind only, so a fully populated
// *Error matches the sentinel of its kind.
var (
	ErrPortExhausted             = &Error{Kind: KindPortExhausted}
	ErrForwardingFailed          = &Error{Kind: KindForwardingFailed}
	ErrForwardRemovalFailed      = &Error{Kind: KindForwardRemovalFailed}
	ErrComponentValidationFailed = &Error{Kind: KindComponentValidationFailed}
	ErrCommunicationFailed       = &Error{Kind: KindCommunicationFailed}
	ErrUnknownDevice             = &Error{Kind: KindUnknownDevice}
	ErrIllegalCommand            = &Error{Kind: KindIllegalCommand}
	ErrUnknownAction             = &Error{Kind: KindUnknownAction}
	ErrActionFailed              = &Error{Kind: KindActionFailed}
)

// Error is the typed error carried across the agent. DeviceID and Component
// are set whenever the failure is attributable to a device or companion.
type Error struct {
	Kind      Kind
	DeviceID  string
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.DeviceID != "" {
		fmt.Fprintf(&b, " [device=%s", e.DeviceID)
		if e.Component != "" {
			fmt.Fprintf(&b, " component=%s", e.Component)
		}
		b.WriteString("]")
	} else if e.Component != "" {
		fmt.Fprintf(&b, " [component=%s]", e.Component)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, deviceID, component, message string) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, Component: component, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, deviceID, component string, err error) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, Component: component, Err: err}
}

// KindOf returns the kind of err, or KindActionFailed when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindActionFailed
}

// Describe converts any error into the descriptor sent to the control plane.
func Describe(err error) *models.ErrorDescriptor {
	if err == nil {
		return nil
	}
	desc := &models.ErrorDescriptor{
		Kind:    string(KindActionFailed),
		Message: err.Error(),
	}
	var e *Error
	if errors.As(err, &e) {
		desc.Kind = string(e.Kind)
		desc.DeviceID = e.DeviceID
		desc.Component = e.Component
	}
	return desc
}
