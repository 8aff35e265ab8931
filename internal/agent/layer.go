package agent

import (
	"context"
	"time"

	"github.com/benmeehan/grid-agent/internal/channel"
	"github.com/benmeehan/grid-agent/internal/device"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/internal/ports"
	"github.com/benmeehan/grid-agent/internal/service_registry"
	"github.com/benmeehan/grid-agent/internal/services"
	"github.com/benmeehan/grid-agent/internal/utils"
)

// deviceLayer is everything the agent owns while not Stopped.
type deviceLayer struct {
	pool      *ports.Pool
	registry  *device.Registry
	manager   *device.Manager
	heartbeat *services.HeartbeatService
	workers   *utils.WorkerPool
	services  *service_registry.ServiceRegistry
}

func componentChannelConfig(cc utils.ComponentConfig, dial channel.Dialer) channel.Config {
	var backoff channel.Backoff = channel.ConstantBackoff(cc.RetryDelay)
	if cc.RetryMaxDelay > cc.RetryDelay {
		backoff = channel.ExponentialBackoff{Initial: cc.RetryDelay, Max: cc.RetryMaxDelay, Jitter: 0.2}
	}
	return channel.Config{
		RemotePort: cc.RemotePort,
		Retry:      channel.RetryPolicy{Attempts: cc.RetryLimit, Backoff: backoff},
		IOTimeout:  cc.IOTimeout,
		Dial:       dial,
	}
}

// startLayer builds the device layer and starts its services in order:
// device manager first, then the keep-alive loop.
func (a *Agent) startLayer() (*deviceLayer, error) {
	cfg := a.deps.Config
	logger := a.deps.Logger

	var poolOpts []ports.Option
	poolOpts = append(poolOpts, ports.WithLogger(logger))
	if cfg.Ports.BindCheck {
		poolOpts = append(poolOpts, ports.WithBindCheck())
	}
	pool, err := ports.NewPool(cfg.Ports.RangeStart, cfg.Ports.RangeSize, poolOpts...)
	if err != nil {
		return nil, err
	}

	wrapperDeps := device.WrapperDeps{
		Pool:       pool,
		Bridge:     a.deps.Bridge,
		Files:      a.deps.Files,
		Shell:      services.NewShellService(cfg.Devices.OutputSizeLimit, cfg.Devices.MaxExecutionTime, a.deps.Bridge, logger),
		Ops:        device.DefaultOpsSelector(),
		Service:    componentChannelConfig(cfg.Components.Service, a.deps.Dial),
		Automation: componentChannelConfig(cfg.Components.Automation, a.deps.Dial),
		Logger:     logger,
	}
	factory := func(ctx context.Context, serial string) (device.Wrapper, error) {
		return device.NewAndroidWrapper(ctx, serial, wrapperDeps)
	}

	layer := &deviceLayer{
		pool:     pool,
		registry: device.NewRegistry(),
		workers:  utils.NewWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize),
		services: service_registry.NewServiceRegistry(logger),
	}
	layer.manager = device.NewManager(cfg.Devices.PollInterval, a.deps.Bridge, layer.registry, factory, logger)
	layer.services.RegisterService("device_manager", layer.manager)

	if cfg.Heartbeat.Enabled {
		metrics := cfg.Heartbeat.Metrics
		layer.heartbeat = services.NewHeartbeatService(cfg.Heartbeat.Interval, a.deps.AgentID, &metrics,
			a.deps.Metrics, a.heartbeatStatus(layer), logger)
		layer.services.RegisterService("heartbeat", layer.heartbeat)
	}

	if err := layer.services.StartServices(); err != nil {
		layer.workers.Shutdown()
		return nil, err
	}
	return layer, nil
}

func (a *Agent) heartbeatStatus(layer *deviceLayer) services.StatusFunc {
	return func(hb *models.Heartbeat) {
		hb.State = a.State().String()
		hb.DeviceCount = layer.registry.Len()
		hb.PortsInUse = layer.pool.InUse()
	}
}

// stop stops the services in reverse order, which closes every wrapper and
// returns their ports, then drains the worker pool.
func (l *deviceLayer) stop() error {
	err := l.services.StopServices()
	l.workers.Shutdown()
	return err
}

// attach routes device changes and heartbeats to a session and returns the
// devices attached before it.
func (l *deviceLayer) attach(sender services.MessageSender, listener device.Listener) []string {
	existing := l.manager.Listen(listener)
	if l.heartbeat != nil {
		l.heartbeat.Attach(sender)
	}
	return existing
}

func (l *deviceLayer) detach() {
	l.manager.SetListener(nil)
	if l.heartbeat != nil {
		l.heartbeat.Attach(nil)
	}
}

func uptimeString(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
