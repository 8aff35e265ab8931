package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/channel"
	"github.com/benmeehan/grid-agent/internal/communicators"
	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/forward"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/internal/ports"
	"github.com/benmeehan/grid-agent/internal/services"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/rs/zerolog"
)

// Wrapper is the per-device handle the router executes actions against.
type Wrapper interface {
	ID() string
	Info(ctx context.Context) (*models.DeviceInfo, error)
	Execute(ctx context.Context, action string, args []string) (any, error)
	Actions() []string
	Close(ctx context.Context) error
}

// WrapperDeps are the shared collaborators of every AndroidWrapper.
type WrapperDeps struct {
	Pool       *ports.Pool
	Bridge     bridge.Bridge
	Files      file.FileOperations
	Shell      *services.ShellService
	Ops        *Selector[OpsFactory]
	Service    channel.Config
	Automation channel.Config
	Logger     zerolog.Logger
}

type arity struct {
	min, max int // max < 0 means unbounded
}

func (a arity) accepts(n int) bool {
	return n >= a.min && (a.max < 0 || n <= a.max)
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d", a.min)
	case a.min == a.max:
		return fmt.Sprintf("%d", a.min)
	default:
		return fmt.Sprintf("%d to %d", a.min, a.max)
	}
}

type action struct {
	arity arity
	run   func(ctx context.Context, args []string) (any, error)
}

// AndroidWrapper owns the companion channels, the selected Ops and the
// action table of one Android device.
type AndroidWrapper struct {
	serial     string
	props      Properties
	opsName    string
	ops        Ops
	service    *communicators.ServiceCommunicator
	automation *communicators.AutomationCommunicator
	deps       WrapperDeps
	actions    map[string]action
	logger     zerolog.Logger

	closeOnce sync.Once
}

// NewAndroidWrapper reads the device properties, resolves the device-specific
// Ops once and allocates the forwards of both companions.
func NewAndroidWrapper(ctx context.Context, serial string, deps WrapperDeps) (*AndroidWrapper, error) {
	logger := deps.Logger.With().Str("device_id", serial).Logger()

	props, err := FetchProperties(ctx, deps.Bridge, serial)
	if err != nil {
		return nil, fmt.Errorf("read properties of %s: %w", serial, err)
	}
	opsName, factory := deps.Ops.Resolve(props)

	serviceFwd, err := forward.New(deps.Pool, deps.Bridge, serial, deps.Logger)
	if err != nil {
		return nil, err
	}
	automationFwd, err := forward.New(deps.Pool, deps.Bridge, serial, deps.Logger)
	if err != nil {
		serviceFwd.Stop(ctx)
		return nil, err
	}

	serviceCfg := deps.Service
	serviceCfg.Component = constants.ComponentService
	automationCfg := deps.Automation
	automationCfg.Component = constants.ComponentAutomation

	w := &AndroidWrapper{
		serial:  serial,
		props:   props,
		opsName: opsName,
		ops:     factory(deps.Bridge, serial),
		service: communicators.NewServiceCommunicator(serial,
			communicators.NewComponentChannel(serviceFwd, serviceCfg, deps.Logger)),
		automation: communicators.NewAutomationCommunicator(serial,
			communicators.NewComponentChannel(automationFwd, automationCfg, deps.Logger)),
		deps:   deps,
		logger: logger,
	}
	w.actions = w.actionTable()

	logger.Info().
		Str("manufacturer", props.Manufacturer).
		Str("model", props.Model).
		Str("release", props.Release).
		Str("ops", opsName).
		Msg("Device wrapper created")
	return w, nil
}

func (w *AndroidWrapper) actionTable() map[string]action {
	return map[string]action{
		"info": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return w.Info(ctx)
		}},
		"ping": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			if err := w.service.Ping(); err != nil {
				return nil, err
			}
			return constants.ResponsePong, nil
		}},
		"validate": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return nil, errors.Join(w.service.Validate(), w.automation.Validate())
		}},
		"battery": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return w.service.BatteryState()
		}},
		"status": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return w.service.DeviceStatus()
		}},
		"gesture": {arity{1, 1}, func(ctx context.Context, args []string) (any, error) {
			return nil, w.automation.PlayGesture(json.RawMessage(args[0]))
		}},
		"hierarchy": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return w.automation.DumpHierarchy()
		}},
		"shell": {arity{1, -1}, func(ctx context.Context, args []string) (any, error) {
			return w.deps.Shell.ExecuteCommand(ctx, w.serial, strings.Join(args, " "))
		}},
		"push": {arity{2, 2}, func(ctx context.Context, args []string) (any, error) {
			exists, err := w.deps.Files.IsFileExists(args[0])
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("local file %s does not exist", args[0])
			}
			return nil, w.deps.Bridge.Push(ctx, w.serial, args[0], args[1])
		}},
		"pull": {arity{2, 2}, func(ctx context.Context, args []string) (any, error) {
			return nil, w.deps.Bridge.Pull(ctx, w.serial, args[0], args[1])
		}},
		"screen": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return w.ops.ScreenOn(ctx)
		}},
		"wake": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			return nil, w.ops.WakeScreen(ctx)
		}},
		"reboot": {arity{0, 0}, func(ctx context.Context, _ []string) (any, error) {
			if err := w.ops.Reboot(ctx); err != nil {
				return nil, err
			}
			// The companions restart with the device.
			w.service.Invalidate()
			w.automation.Invalidate()
			return nil, nil
		}},
	}
}

// ID returns the device serial.
func (w *AndroidWrapper) ID() string {
	return w.serial
}

// OpsName returns the name of the selected Ops implementation.
func (w *AndroidWrapper) OpsName() string {
	return w.opsName
}

// Info describes the device from the properties read at attach time.
func (w *AndroidWrapper) Info(ctx context.Context) (*models.DeviceInfo, error) {
	return &models.DeviceInfo{
		Serial:       w.serial,
		Manufacturer: w.props.Manufacturer,
		Model:        w.props.Model,
		Release:      w.props.Release,
		APILevel:     w.props.APILevel,
		State:        bridge.StateDevice,
	}, nil
}

// Actions lists the supported action names.
func (w *AndroidWrapper) Actions() []string {
	names := make([]string, 0, len(w.actions))
	for name := range w.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a named action after checking its arity.
func (w *AndroidWrapper) Execute(ctx context.Context, name string, args []string) (any, error) {
	a, ok := w.actions[name]
	if !ok {
		return nil, agenterr.New(agenterr.KindUnknownAction, w.serial, "", fmt.Sprintf("unknown action %q", name))
	}
	if !a.arity.accepts(len(args)) {
		return nil, agenterr.New(agenterr.KindActionFailed, w.serial, "",
			fmt.Sprintf("action %q expects %s arguments, got %d", name, a.arity, len(args)))
	}

	w.logger.Debug().Str("action", name).Strs("args", args).Msg("Executing action")
	return a.run(ctx, args)
}

// Close stops both companion channels, which removes their forwards and
// releases their ports. Calls after the first do nothing.
func (w *AndroidWrapper) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.service.Stop()
		w.automation.Stop()
		w.logger.Info().Msg("Device wrapper closed")
	})
	return nil
}
