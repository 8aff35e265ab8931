package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/metrics_collectors"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/rs/zerolog"
)

// MessageSender delivers heartbeats to the control plane.
type MessageSender interface {
	Send(ctx context.Context, kind models.MessageType, payload any) error
}

// StatusFunc fills the agent-specific fields of a heartbeat.
type StatusFunc func(hb *models.Heartbeat)

// HeartbeatService is the agent's keep-alive loop. It always ticks while
// started; heartbeats are only published while a sender is attached.
type HeartbeatService struct {
	// Configuration Fields
	Interval time.Duration
	AgentID  string
	Metrics  *models.MetricsConfig

	// Dependencies
	Collectors *metrics_collectors.MetricsRegistry
	Status     StatusFunc
	Logger     zerolog.Logger

	// Internal state management
	mu     sync.Mutex
	sender MessageSender
	beats  uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService.
func NewHeartbeatService(interval time.Duration, agentID string, metrics *models.MetricsConfig,
	collectors *metrics_collectors.MetricsRegistry, status StatusFunc, logger zerolog.Logger) *HeartbeatService {

	if interval <= 0 {
		interval = constants.DefaultHeartbeatInterval
	}
	return &HeartbeatService{
		Interval:   interval,
		AgentID:    agentID,
		Metrics:    metrics,
		Collectors: collectors,
		Status:     status,
		Logger:     logger,
	}
}

// Attach sets the sender heartbeats are published on. nil detaches it.
func (h *HeartbeatService) Attach(sender MessageSender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender = sender
}

// Beats returns the number of completed keep-alive ticks.
func (h *HeartbeatService) Beats() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().Dur("interval", h.Interval).Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// Build assembles one heartbeat.
func (h *HeartbeatService) Build(ctx context.Context) models.Heartbeat {
	hb := models.Heartbeat{
		AgentID:   h.AgentID,
		Timestamp: time.Now().UTC(),
		Status:    constants.StatusAlive,
	}
	if h.Status != nil {
		h.Status(&hb)
	}
	if h.Collectors != nil {
		hb.Host = h.Collectors.Snapshot(ctx, h.Metrics)
	}
	return hb
}

func (h *HeartbeatService) beat(ctx context.Context) {
	h.mu.Lock()
	sender := h.sender
	h.beats++
	h.mu.Unlock()

	if sender == nil {
		h.Logger.Debug().Msg("Keep-alive tick, no control plane attached")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.Interval)
	defer cancel()
	if err := sender.Send(sendCtx, models.MessageHeartbeat, h.Build(sendCtx)); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to publish heartbeat message")
		return
	}
	h.Logger.Debug().Msg("Heartbeat published successfully")
}

// runHeartbeatLoop ticks at the configured interval until stopped.
func (h *HeartbeatService) runHeartbeatLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat(h.ctx)
		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}
