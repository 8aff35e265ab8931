package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Factory builds the wrapper of a newly attached device.
type Factory func(ctx context.Context, serial string) (Wrapper, error)

// Listener is notified after a device was attached or detached.
type Listener func(ctx context.Context, deviceID string, connected bool)

// Manager keeps the registry in sync with the devices the bridge reports.
type Manager struct {
	// Configuration Fields
	interval time.Duration

	// Dependencies
	bridge   bridge.Bridge
	registry *Registry
	factory  Factory
	logger   zerolog.Logger

	// Internal state management
	mu       sync.Mutex
	listener Listener
	syncMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates a manager polling br every interval.
func NewManager(interval time.Duration, br bridge.Bridge, registry *Registry, factory Factory, logger zerolog.Logger) *Manager {
	return &Manager{
		interval: interval,
		bridge:   br,
		registry: registry,
		factory:  factory,
		logger:   logger,
	}
}

// SetListener replaces the attach/detach listener. A nil listener disables
// notifications.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Listen installs l and returns the devices already attached. No device is
// both in the returned list and reported to l as attached.
func (m *Manager) Listen(l Listener) []string {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	m.SetListener(l)
	return m.registry.List()
}

func (m *Manager) notify(ctx context.Context, id string, connected bool) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l(ctx, id, connected)
	}
}

// Start runs an initial sync and launches the polling loop.
func (m *Manager) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("Device manager is already running")
		return errors.New("device manager is already running")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	if err := m.Sync(m.ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Initial device sync failed, retrying on next poll")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPollLoop()
	}()

	m.logger.Info().Dur("interval", m.interval).Msg("Device manager started successfully")
	return nil
}

// Stop ends polling and closes every wrapper, releasing their forwards and ports.
func (m *Manager) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("Device manager is not running")
		return errors.New("device manager is not running")
	}

	m.cancel()
	m.wg.Wait()
	m.ctx = nil
	m.cancel = nil

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	var g errgroup.Group
	for _, w := range m.registry.Drain() {
		w := w
		g.Go(func() error {
			return w.Close(context.Background())
		})
	}
	err := g.Wait()

	m.logger.Info().Msg("Device manager stopped successfully")
	return err
}

func (m *Manager) runPollLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Sync(m.ctx); err != nil {
				m.logger.Error().Err(err).Msg("Device sync failed")
			}
		case <-m.ctx.Done():
			m.logger.Info().Msg("Device manager stopping gracefully")
			return
		}
	}
}

// Sync performs one reconciliation round between the bridge listing and the registry.
func (m *Manager) Sync(ctx context.Context) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	devices, err := m.bridge.Devices(ctx)
	if err != nil {
		return err
	}

	var online []string
	for _, d := range devices {
		if d.Online() {
			online = append(online, d.Serial)
		}
	}
	present := utils.SliceToSet(online)

	for _, id := range m.registry.List() {
		if _, ok := present[id]; ok {
			continue
		}
		w, ok := m.registry.Remove(id)
		if !ok {
			continue
		}
		if err := w.Close(ctx); err != nil {
			m.logger.Warn().Err(err).Str("device_id", id).Msg("Error closing detached device")
		}
		m.logger.Info().Str("device_id", id).Msg("Device detached")
		m.notify(ctx, id, false)
	}

	for _, id := range online {
		if _, ok := m.registry.Lookup(id); ok {
			continue
		}
		w, err := m.factory(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("device_id", id).Msg("Failed to set up attached device")
			continue
		}
		if !m.registry.Add(w) {
			_ = w.Close(ctx)
			continue
		}
		m.logger.Info().Str("device_id", id).Msg("Device attached")
		m.notify(ctx, id, true)
	}

	return nil
}
