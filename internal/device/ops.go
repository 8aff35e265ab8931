package device

import (
	"context"
	"strings"

	"github.com/benmeehan/grid-agent/pkg/bridge"
)

// Ops are the device operations whose implementation depends on the
// manufacturer or Android version.
type Ops interface {
	ScreenOn(ctx context.Context) (bool, error)
	WakeScreen(ctx context.Context) error
	Reboot(ctx context.Context) error
}

// OpsFactory builds the Ops of one device.
type OpsFactory func(br bridge.Bridge, serial string) Ops

// DefaultOpsSelector returns the implementation registry used for every
// device, most specific entries first.
func DefaultOpsSelector() *Selector[OpsFactory] {
	return NewSelector[OpsFactory]("generic", newGenericOps).
		Register("samsung-oneui", All(ManufacturerIs("samsung"), ReleaseSatisfies(">= 11")), newSamsungOps).
		Register("legacy", APILevelBelow(20), newLegacyOps)
}

type genericOps struct {
	bridge bridge.Bridge
	serial string
}

func newGenericOps(br bridge.Bridge, serial string) Ops {
	return &genericOps{bridge: br, serial: serial}
}

func (o *genericOps) shell(ctx context.Context, cmd string) (string, error) {
	return o.bridge.Shell(ctx, o.serial, cmd)
}

func (o *genericOps) ScreenOn(ctx context.Context) (bool, error) {
	out, err := o.shell(ctx, "dumpsys power")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "mWakefulness=Awake") || strings.Contains(out, "Display Power: state=ON"), nil
}

func (o *genericOps) WakeScreen(ctx context.Context) error {
	_, err := o.shell(ctx, "input keyevent KEYCODE_WAKEUP")
	return err
}

func (o *genericOps) Reboot(ctx context.Context) error {
	_, err := o.shell(ctx, "svc power reboot")
	return err
}

// legacyOps covers devices without KEYCODE_WAKEUP. The power key toggles,
// so it is only pressed when the screen is off.
type legacyOps struct {
	genericOps
}

func newLegacyOps(br bridge.Bridge, serial string) Ops {
	return &legacyOps{genericOps{bridge: br, serial: serial}}
}

func (o *legacyOps) ScreenOn(ctx context.Context) (bool, error) {
	out, err := o.shell(ctx, "dumpsys power")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "mScreenOn=true"), nil
}

func (o *legacyOps) WakeScreen(ctx context.Context) error {
	on, err := o.ScreenOn(ctx)
	if err != nil || on {
		return err
	}
	_, err = o.shell(ctx, "input keyevent 26")
	return err
}

func (o *legacyOps) Reboot(ctx context.Context) error {
	_, err := o.shell(ctx, "reboot")
	return err
}

// samsungOps also dismisses the keyguard, which One UI keeps up after wake.
type samsungOps struct {
	genericOps
}

func newSamsungOps(br bridge.Bridge, serial string) Ops {
	return &samsungOps{genericOps{bridge: br, serial: serial}}
}

func (o *samsungOps) WakeScreen(ctx context.Context) error {
	if err := o.genericOps.WakeScreen(ctx); err != nil {
		return err
	}
	_, err := o.shell(ctx, "wm dismiss-keyguard")
	return err
}
