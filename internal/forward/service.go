package forward

import (
	"context"
	"sync"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/ports"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/rs/zerolog"
)

// Service maps one allocated local port to a remote port on one device and
// keeps the forward alive across requests.
type Service struct {
	// Dependencies
	pool   *ports.Pool
	bridge bridge.Bridge
	serial string
	logger zerolog.Logger

	// Internal state management
	mu         sync.Mutex
	localPort  int
	remotePort int
	forwarded  bool
	stopped    bool
}

// New allocates the local port up front. It fails with a PortExhausted error
// when the pool is empty.
func New(pool *ports.Pool, br bridge.Bridge, serial string, logger zerolog.Logger) (*Service, error) {
	localPort, err := pool.Allocate()
	if err != nil {
		return nil, err
	}

	return &Service{
		pool:      pool,
		bridge:    br,
		serial:    serial,
		localPort: localPort,
		logger:    logger.With().Str("device_id", serial).Int("local_port", localPort).Logger(),
	}, nil
}

// Forward binds the local port to remotePort. Forwarding again to the current
// remote port is a no-op; a different remote port replaces the old forward.
func (s *Service) Forward(ctx context.Context, remotePort int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return agenterr.New(agenterr.KindForwardingFailed, s.serial, "", "forwarding service is stopped")
	}
	if s.forwarded && s.remotePort == remotePort {
		return nil
	}
	if s.forwarded {
		if err := s.removeLocked(ctx); err != nil {
			return err
		}
	}

	if err := s.bridge.CreateForward(ctx, s.serial, s.localPort, remotePort); err != nil {
		s.logger.Error().Err(err).Int("remote_port", remotePort).Msg("Failed to create port forward")
		return agenterr.Wrap(agenterr.KindForwardingFailed, s.serial, "", err)
	}

	s.remotePort = remotePort
	s.forwarded = true
	s.logger.Debug().Int("remote_port", remotePort).Msg("Port forward created")
	return nil
}

// RemoveForward tears down the active forward, if any.
func (s *Service) RemoveForward(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx)
}

func (s *Service) removeLocked(ctx context.Context) error {
	if !s.forwarded {
		return nil
	}
	if err := s.bridge.RemoveForward(ctx, s.serial, s.localPort); err != nil {
		s.logger.Error().Err(err).Int("remote_port", s.remotePort).Msg("Failed to remove port forward")
		return agenterr.Wrap(agenterr.KindForwardRemovalFailed, s.serial, "", err)
	}
	s.forwarded = false
	s.logger.Debug().Int("remote_port", s.remotePort).Msg("Port forward removed")
	return nil
}

// Stop removes the forward on a best-effort basis and returns the local port
// to the pool. Calls after the first do nothing.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	if err := s.removeLocked(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Leaving stale port forward behind")
	}
	s.forwarded = false
	s.pool.Release(s.localPort)
}

// LocalPort returns the allocated host port.
func (s *Service) LocalPort() int {
	return s.localPort
}

// RemotePort returns the last forwarded device port.
func (s *Service) RemotePort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remotePort
}

// IsForwarded reports whether a forward is currently active.
func (s *Service) IsForwarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwarded
}

// DeviceID returns the serial of the device this service forwards to.
func (s *Service) DeviceID() string {
	return s.serial
}
