package device

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/channel"
	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/mocks"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/internal/ports"
	"github.com/benmeehan/grid-agent/internal/services"
	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// batteryCompanion answers the handshake and battery requests.
func batteryCompanion(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		r := bufio.NewReader(server)
		for {
			line, err := r.ReadBytes('\n')
			if err != nil {
				return
			}
			var req models.ComponentRequest
			_ = json.Unmarshal(line, &req)
			resp := models.ComponentResponse{ID: req.ID, Type: req.Type}
			if req.Type == constants.RequestBatteryState {
				resp.Result = json.RawMessage(`{"level":42}`)
			}
			out, _ := json.Marshal(resp)
			if _, err := server.Write(append(out, '\n')); err != nil {
				return
			}
		}
	}()
	return client, nil
}

func stubProps(br *mocks.MockBridge, serial, manufacturer, release, sdk string) {
	br.On("GetProp", mock.Anything, serial, "ro.product.manufacturer").Return(manufacturer, nil)
	br.On("GetProp", mock.Anything, serial, "ro.product.model").Return("Model", nil)
	br.On("GetProp", mock.Anything, serial, "ro.build.version.release").Return(release, nil)
	br.On("GetProp", mock.Anything, serial, "ro.build.version.sdk").Return(sdk, nil)
}

func newDeps(t *testing.T, br *mocks.MockBridge, poolSize int) WrapperDeps {
	t.Helper()
	pool, err := ports.NewPool(50000, poolSize)
	require.NoError(t, err)
	componentCfg := channel.Config{
		Retry:     channel.RetryPolicy{Attempts: 2},
		IOTimeout: time.Second,
		Dial:      batteryCompanion,
	}
	service := componentCfg
	service.RemotePort = constants.DefaultServiceRemotePort
	automation := componentCfg
	automation.RemotePort = constants.DefaultAutomationRemotePort

	return WrapperDeps{
		Pool:       pool,
		Bridge:     br,
		Files:      file.NewFileService(),
		Shell:      services.NewShellService(1024, time.Second, br, zerolog.Nop()),
		Ops:        DefaultOpsSelector(),
		Service:    service,
		Automation: automation,
		Logger:     zerolog.Nop(),
	}
}

func newWrapper(t *testing.T) (*AndroidWrapper, *mocks.MockBridge, WrapperDeps) {
	t.Helper()
	br := new(mocks.MockBridge)
	stubProps(br, "D1", "samsung", "13", "33")
	br.On("CreateForward", mock.Anything, "D1", mock.Anything, mock.Anything).Return(nil)
	br.On("RemoveForward", mock.Anything, "D1", mock.Anything).Return(nil)
	deps := newDeps(t, br, 4)

	w, err := NewAndroidWrapper(context.Background(), "D1", deps)
	require.NoError(t, err)
	return w, br, deps
}

func TestNewAndroidWrapper_AllocatesPortsAndSelectsOps(t *testing.T) {
	w, _, deps := newWrapper(t)

	assert.Equal(t, "D1", w.ID())
	assert.Equal(t, "samsung-oneui", w.OpsName())
	assert.Equal(t, 2, deps.Pool.InUse())

	info, err := w.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 33, info.APILevel)
	assert.Equal(t, "samsung", info.Manufacturer)
}

func TestNewAndroidWrapper_PortExhaustedReleasesFirstPort(t *testing.T) {
	br := new(mocks.MockBridge)
	stubProps(br, "D1", "google", "14", "34")
	deps := newDeps(t, br, 1)

	_, err := NewAndroidWrapper(context.Background(), "D1", deps)

	assert.ErrorIs(t, err, agenterr.ErrPortExhausted)
	assert.Equal(t, 0, deps.Pool.InUse())
}

func TestAndroidWrapper_Execute(t *testing.T) {
	w, br, _ := newWrapper(t)
	br.On("Shell", mock.Anything, "D1", "pm list packages").Return("package:com.example", nil)

	t.Run("unknown action", func(t *testing.T) {
		_, err := w.Execute(context.Background(), "teleport", nil)
		assert.ErrorIs(t, err, agenterr.ErrUnknownAction)
	})

	t.Run("arity mismatch", func(t *testing.T) {
		_, err := w.Execute(context.Background(), "push", []string{"only-one"})
		assert.ErrorIs(t, err, agenterr.ErrActionFailed)
		assert.Contains(t, err.Error(), "expects 2 arguments")
	})

	t.Run("shell joins arguments", func(t *testing.T) {
		out, err := w.Execute(context.Background(), "shell", []string{"pm", "list", "packages"})
		require.NoError(t, err)
		assert.Equal(t, "package:com.example", out)
	})

	t.Run("battery goes through the service companion", func(t *testing.T) {
		out, err := w.Execute(context.Background(), "battery", nil)
		require.NoError(t, err)
		assert.Equal(t, models.BatteryState{Level: 42}, out)
	})

	t.Run("push checks the local file", func(t *testing.T) {
		_, err := w.Execute(context.Background(), "push", []string{filepath.Join(t.TempDir(), "missing.apk"), "/sdcard/"})
		assert.Error(t, err)

		local := filepath.Join(t.TempDir(), "data.bin")
		require.NoError(t, os.WriteFile(local, []byte("x"), 0o600))
		br.On("Push", mock.Anything, "D1", local, "/sdcard/data.bin").Return(nil).Once()
		_, err = w.Execute(context.Background(), "push", []string{local, "/sdcard/data.bin"})
		assert.NoError(t, err)
	})
}

func TestAndroidWrapper_RebootForcesReconnect(t *testing.T) {
	// Setup
	br := new(mocks.MockBridge)
	stubProps(br, "D1", "google", "14", "34")
	br.On("CreateForward", mock.Anything, "D1", mock.Anything, mock.Anything).Return(nil)
	br.On("RemoveForward", mock.Anything, "D1", mock.Anything).Return(nil)
	br.On("Shell", mock.Anything, "D1", "svc power reboot").Return("", nil)
	deps := newDeps(t, br, 4)
	var dials atomic.Int32
	deps.Service.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		dials.Add(1)
		return batteryCompanion(ctx, network, address)
	}
	w, err := NewAndroidWrapper(context.Background(), "D1", deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	_, err = w.Execute(context.Background(), "battery", nil)
	require.NoError(t, err)
	_, err = w.Execute(context.Background(), "battery", nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), dials.Load())

	// Execute
	_, err = w.Execute(context.Background(), "reboot", nil)
	require.NoError(t, err)
	out, err := w.Execute(context.Background(), "battery", nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.BatteryState{Level: 42}, out)
	assert.Equal(t, int32(2), dials.Load())
	br.AssertCalled(t, "Shell", mock.Anything, "D1", "svc power reboot")
}

func TestAndroidWrapper_CloseReleasesPorts(t *testing.T) {
	w, _, deps := newWrapper(t)
	_, err := w.Execute(context.Background(), "battery", nil)
	require.NoError(t, err)

	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 0, deps.Pool.InUse())
}

func TestAndroidWrapper_Actions(t *testing.T) {
	w, _, _ := newWrapper(t)

	actions := w.Actions()

	assert.Contains(t, actions, "battery")
	assert.Contains(t, actions, "gesture")
	assert.IsIncreasing(t, actions)
}
