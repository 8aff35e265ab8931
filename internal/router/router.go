package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/device"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/rs/zerolog"
)

const sendTimeout = 5 * time.Second

var errRouterClosed = errors.New("router is closed")

// Sender delivers messages to the control plane.
type Sender interface {
	Send(ctx context.Context, kind models.MessageType, payload any) error
}

// Devices resolves a device id to its wrapper.
type Devices interface {
	Lookup(id string) (device.Wrapper, bool)
}

// Router dispatches routing requests to device wrappers and sends back the
// correlated responses. Every request runs in its own goroutine, so replies
// are matched to requests by correlation id only.
type Router struct {
	// Dependencies
	devices Devices
	sender  Sender
	pool    *utils.WorkerPool
	logger  zerolog.Logger

	// Internal state management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a router. Async requests are executed on pool.
func New(devices Devices, sender Sender, pool *utils.WorkerPool, logger zerolog.Logger) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		devices: devices,
		sender:  sender,
		pool:    pool,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handle accepts a request without blocking the caller.
func (r *Router) Handle(req models.RoutingRequest) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn().Str("correlation_id", req.CorrelationID).Msg("Dropping request, router is closed")
		return
	}

	r.wg.Add(1)
	utils.SafeGo(r.logger, "route:"+req.CorrelationID, func() {
		defer r.wg.Done()
		r.dispatch(req)
	})
}

func (r *Router) dispatch(req models.RoutingRequest) {
	logger := r.logger.With().
		Str("correlation_id", req.CorrelationID).
		Str("device_id", req.DeviceID).
		Str("action", req.Action).
		Logger()

	w, ok := r.devices.Lookup(req.DeviceID)
	if !ok {
		logger.Warn().Msg("Request for unknown device")
		r.respond(req, nil, agenterr.New(agenterr.KindUnknownDevice, req.DeviceID, "",
			fmt.Sprintf("device %s is not attached", req.DeviceID)))
		return
	}

	if !req.Async {
		result, err := r.execute(r.ctx, w, req)
		if err != nil {
			logger.Error().Err(err).Msg("Action failed")
		}
		r.respond(req, result, err)
		return
	}

	var result any
	done, err := r.pool.Submit(r.ctx, func(ctx context.Context) error {
		var execErr error
		result, execErr = r.execute(ctx, w, req)
		return execErr
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to submit async action")
		r.respond(req, nil, agenterr.Wrap(agenterr.KindActionFailed, req.DeviceID, "", err))
		return
	}

	if err := <-done; err != nil {
		logger.Error().Err(err).Msg("Async action failed")
		r.respond(req, result, err)
		return
	}
	if req.Notify {
		r.respond(req, result, nil)
	}
}

func (r *Router) execute(ctx context.Context, w device.Wrapper, req models.RoutingRequest) (any, error) {
	var result any
	err := utils.CatchPanic(func() error {
		var err error
		result, err = w.Execute(ctx, req.Action, req.Arguments)
		return err
	})

	var panicErr *utils.PanicError
	if errors.As(err, &panicErr) {
		r.logger.Error().
			Str("device_id", req.DeviceID).
			Str("action", req.Action).
			Str("stack", string(panicErr.Stack)).
			Msg("Action panicked")
		return nil, agenterr.Wrap(agenterr.KindActionFailed, req.DeviceID, "", err)
	}
	return result, err
}

func (r *Router) respond(req models.RoutingRequest, result any, err error) {
	resp := models.RoutingResponse{
		CorrelationID: req.CorrelationID,
		DeviceID:      req.DeviceID,
		Action:        req.Action,
	}

	switch {
	case err == nil && result != nil:
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			err = agenterr.Wrap(agenterr.KindActionFailed, req.DeviceID, "", marshalErr)
		} else {
			resp.Result = raw
		}
	case err != nil:
		// Output a failed shell command produced before exiting.
		if out, ok := result.(string); ok && out != "" {
			resp.Result, _ = json.Marshal(out)
		}
	}
	if err != nil {
		resp.Error = agenterr.Describe(err)
		if resp.Error.DeviceID == "" {
			resp.Error.DeviceID = req.DeviceID
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := r.sender.Send(ctx, models.MessageResponse, resp); err != nil {
		r.logger.Error().Err(err).Str("correlation_id", req.CorrelationID).Msg("Failed to send response")
	}
}

// NotifyDeviceChange pushes an attach or detach notice to the control plane.
// For an attach the device info is embedded when it can be read.
func (r *Router) NotifyDeviceChange(ctx context.Context, deviceID string, connected bool) {
	change := models.DeviceChange{DeviceID: deviceID, Connected: connected}

	if connected {
		if w, ok := r.devices.Lookup(deviceID); ok {
			info, err := w.Info(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to read device info")
			} else {
				change.Info = info
			}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := r.sender.Send(sendCtx, models.MessageDeviceChange, change); err != nil {
		r.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to send device change")
		return
	}
	r.logger.Debug().Str("device_id", deviceID).Bool("connected", connected).Msg("Device change sent")
}

// Wait blocks until every accepted request has been answered.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close stops accepting requests, cancels running actions and waits for the
// in-flight ones to reply.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errRouterClosed
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info().Msg("Router closed")
	return nil
}
