package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func recordingRunner(out string, err error, calls *[]call) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		return []byte(out), err
	}
}

func TestParseDevices(t *testing.T) {
	output := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
emulator-5554	device
R58M123ABC	unauthorized
0123456789	offline

`
	devices := parseDevices(output)

	require.Len(t, devices, 3)
	assert.Equal(t, DeviceState{Serial: "emulator-5554", State: StateDevice}, devices[0])
	assert.True(t, devices[0].Online())
	assert.False(t, devices[1].Online())
	assert.Equal(t, StateOffline, devices[2].State)
}

func TestADB_CreateForwardArguments(t *testing.T) {
	var calls []call
	adb := NewADB("/opt/adb", time.Second, zerolog.Nop()).WithRunner(recordingRunner("", nil, &calls))

	err := adb.CreateForward(context.Background(), "D1", 50000, 7000)

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/adb", calls[0].name)
	assert.Equal(t, []string{"-s", "D1", "forward", "tcp:50000", "tcp:7000"}, calls[0].args)
}

func TestADB_RemoveForwardArguments(t *testing.T) {
	var calls []call
	adb := NewADB("adb", 0, zerolog.Nop()).WithRunner(recordingRunner("", nil, &calls))

	err := adb.RemoveForward(context.Background(), "D1", 50000)

	require.NoError(t, err)
	assert.Equal(t, []string{"-s", "D1", "forward", "--remove", "tcp:50000"}, calls[0].args)
}

func TestADB_FailureIsBridgeError(t *testing.T) {
	var calls []call
	cause := errors.New("exit status 1")
	adb := NewADB("adb", 0, zerolog.Nop()).WithRunner(recordingRunner("error: device 'D1' not found\n", cause, &calls))

	_, err := adb.Shell(context.Background(), "D1", "ls")

	var bridgeErr *Error
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, "shell", bridgeErr.Op)
	assert.Equal(t, "D1", bridgeErr.Serial)
	assert.Equal(t, "error: device 'D1' not found", bridgeErr.Output)
	assert.ErrorIs(t, err, cause)
}

func TestADB_ShellTrimsOutput(t *testing.T) {
	var calls []call
	adb := NewADB("adb", 0, zerolog.Nop()).WithRunner(recordingRunner("  13\n", nil, &calls))

	out, err := adb.GetProp(context.Background(), "D1", "ro.build.version.release")

	require.NoError(t, err)
	assert.Equal(t, "13", out)
	assert.Equal(t, []string{"-s", "D1", "shell", "getprop", "ro.build.version.release"}, calls[0].args)
}
