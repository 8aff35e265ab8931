// Package agent holds the top-level lifecycle of the device agent: the
// Stopped/Running/Connected state machine and the resources owned in each
// state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/channel"
	"github.com/benmeehan/grid-agent/internal/metrics_collectors"
	"github.com/benmeehan/grid-agent/internal/router"
	"github.com/benmeehan/grid-agent/internal/session"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/rs/zerolog"
)

// ErrExit is returned by the exit command once the agent is stopped.
var ErrExit = errors.New("exit requested")

// SessionFactory creates the control-plane session for a server address.
type SessionFactory func(serverIP string, serverPort int) session.Session

// Dependencies are the collaborators of an Agent.
type Dependencies struct {
	Config   *utils.Config
	AgentID  string
	Bridge   bridge.Bridge
	Files    file.FileOperations
	Sessions SessionFactory
	Metrics  *metrics_collectors.MetricsRegistry
	Dial     channel.Dialer // nil dials TCP
	Logger   zerolog.Logger
}

type connection struct {
	session session.Session
	router  *router.Router
}

// Agent is the process-wide state machine. Commands are serialized; the state
// can be read concurrently.
type Agent struct {
	deps      Dependencies
	startedAt time.Time

	cmdMu sync.Mutex
	layer *deviceLayer
	conn  *connection

	stateMu sync.RWMutex
	state   State
}

// New creates a Stopped agent.
func New(deps Dependencies) *Agent {
	if deps.Config == nil {
		deps.Config = utils.DefaultConfig()
	}
	if deps.Files == nil {
		deps.Files = file.NewFileService()
	}
	return &Agent{
		deps:      deps,
		startedAt: time.Now(),
	}
}

// State returns the current state.
func (a *Agent) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	prev := a.state
	a.state = s
	a.stateMu.Unlock()
	a.deps.Logger.Info().Str("from", prev.String()).Str("to", s.String()).Msg("Agent state changed")
}

// ExecuteCommand validates the arity of a console or control command and
// runs it. Failures never change the state and are never fatal: they are
// returned for the caller to print.
func (a *Agent) ExecuteCommand(ctx context.Context, name string, args []string) (string, error) {
	cmd, ok := commandTable[name]
	if !ok {
		return "", illegal("unknown command %q, type help for the list of commands", name)
	}
	if !cmd.accepts(len(args)) {
		return "", illegal("usage: %s", cmd.usage)
	}

	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	out, err := cmd.run(a, ctx, args)
	if err != nil && !errors.Is(err, ErrExit) {
		a.deps.Logger.Warn().Err(err).Str("command", name).Msg("Command failed")
	}
	return out, err
}

func (a *Agent) run() error {
	next, err := transition(a.State(), Event{Kind: EventRun})
	if err != nil {
		return err
	}

	layer, err := a.startLayer()
	if err != nil {
		return fmt.Errorf("start device layer: %w", err)
	}
	a.layer = layer
	a.setState(next)
	return nil
}

func (a *Agent) connect(ctx context.Context, ip string, port int) error {
	next, err := transition(a.State(), Event{Kind: EventConnect, ServerIP: ip, ServerPort: port})
	if err != nil {
		return err
	}

	sess := a.deps.Sessions(ip, port)
	r := router.New(a.layer.registry, sess, a.layer.workers, a.deps.Logger)
	if err := sess.Open(ctx, r.Handle); err != nil {
		_ = r.Close()
		return fmt.Errorf("connect to %s: %w", next.Address(), err)
	}

	a.conn = &connection{session: sess, router: r}
	existing := a.layer.attach(sess, r.NotifyDeviceChange)
	a.setState(next)

	for _, id := range existing {
		r.NotifyDeviceChange(ctx, id, true)
	}
	return nil
}

func (a *Agent) disconnect() error {
	next, err := transition(a.State(), Event{Kind: EventDisconnect})
	if err != nil {
		return err
	}
	err = a.closeConnection()
	a.setState(next)
	return err
}

// closeConnection detaches the device layer, lets in-flight requests reply
// and closes the session.
func (a *Agent) closeConnection() error {
	if a.conn == nil {
		return nil
	}
	a.layer.detach()
	routerErr := a.conn.router.Close()
	sessionErr := a.conn.session.Close()
	a.conn = nil
	return errors.Join(routerErr, sessionErr)
}

func (a *Agent) stop() error {
	next, err := transition(a.State(), Event{Kind: EventStop})
	if err != nil {
		return err
	}

	connErr := a.closeConnection()
	layerErr := a.layer.stop()
	a.layer = nil
	a.setState(next)

	if err := errors.Join(connErr, layerErr); err != nil {
		a.deps.Logger.Error().Err(err).Msg("Errors while stopping, agent is stopped anyway")
	}
	return nil
}

// Shutdown stops the agent if it is not already stopped.
func (a *Agent) Shutdown() {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()
	if a.State().Kind != Stopped {
		_ = a.stop()
	}
}
