package agent

import (
	"fmt"
	"net"
	"strconv"

	"github.com/benmeehan/grid-agent/internal/agenterr"
)

// Kind enumerates the agent lifecycle states.
type Kind int

const (
	Stopped Kind = iota
	Running
	Connected
)

func (k Kind) String() string {
	switch k {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the agent state. ServerIP and ServerPort are only set when Kind is
// Connected.
type State struct {
	Kind       Kind
	ServerIP   string
	ServerPort int
}

// Address returns host:port of the control plane, or "" when not connected.
func (s State) Address() string {
	if s.Kind != Connected {
		return ""
	}
	return net.JoinHostPort(s.ServerIP, strconv.Itoa(s.ServerPort))
}

func (s State) String() string {
	if s.Kind == Connected {
		return fmt.Sprintf("connected(%s)", s.Address())
	}
	return s.Kind.String()
}

// EventKind enumerates the inputs of the state machine.
type EventKind int

const (
	EventRun EventKind = iota
	EventConnect
	EventDisconnect
	EventStop
)

// Event is an input to transition. ServerIP and ServerPort are only read for
// EventConnect.
type Event struct {
	Kind       EventKind
	ServerIP   string
	ServerPort int
}

func illegal(format string, args ...any) error {
	return agenterr.New(agenterr.KindIllegalCommand, "", "", fmt.Sprintf(format, args...))
}

// transition returns the state reached from s on e, or an IllegalCommand
// error leaving s unchanged.
func transition(s State, e Event) (State, error) {
	switch s.Kind {
	case Stopped:
		switch e.Kind {
		case EventRun:
			return State{Kind: Running}, nil
		default:
			return s, illegal("agent is not running")
		}

	case Running:
		switch e.Kind {
		case EventRun:
			return s, illegal("agent is already running")
		case EventConnect:
			return State{Kind: Connected, ServerIP: e.ServerIP, ServerPort: e.ServerPort}, nil
		case EventDisconnect:
			return s, illegal("not connected")
		case EventStop:
			return State{Kind: Stopped}, nil
		}

	case Connected:
		switch e.Kind {
		case EventRun:
			return s, illegal("agent is already running")
		case EventConnect:
			return s, illegal("already connected to %s", s.Address())
		case EventDisconnect:
			return State{Kind: Running}, nil
		case EventStop:
			return State{Kind: Stopped}, nil
		}
	}

	return s, illegal("unsupported event %d in state %s", e.Kind, s)
}
