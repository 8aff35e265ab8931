package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes the bridge binary and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ADB drives devices through the adb command line client.
type ADB struct {
	path    string
	timeout time.Duration
	run     Runner
	logger  zerolog.Logger
}

// NewADB creates an adb bridge. An empty path resolves adb from ANDROID_HOME
// and falls back to PATH.
func NewADB(path string, timeout time.Duration, logger zerolog.Logger) *ADB {
	if path == "" {
		path = adbPath()
	}
	return &ADB{
		path:    path,
		timeout: timeout,
		run:     execRunner,
		logger:  logger,
	}
}

// WithRunner replaces the process runner.
func (a *ADB) WithRunner(run Runner) *ADB {
	a.run = run
	return a
}

func adbPath() string {
	if home := os.Getenv("ANDROID_HOME"); home != "" {
		return filepath.Join(home, "platform-tools", "adb")
	}
	return "adb"
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func (a *ADB) exec(ctx context.Context, op, serial string, args ...string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if serial != "" {
		args = append([]string{"-s", serial}, args...)
	}
	a.logger.Debug().Str("op", op).Strs("args", args).Msg("Running adb")

	out, err := a.run(ctx, a.path, args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ctx.Err()
		}
		return output, &Error{Op: op, Serial: serial, Output: output, Err: err}
	}
	return output, nil
}

// Devices lists every device the adb server knows about.
func (a *ADB) Devices(ctx context.Context) ([]DeviceState, error) {
	out, err := a.exec(ctx, "devices", "", "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

// CreateForward forwards tcp:localPort on the host to tcp:remotePort on the device.
func (a *ADB) CreateForward(ctx context.Context, serial string, localPort, remotePort int) error {
	_, err := a.exec(ctx, "forward", serial, "forward", tcpSpec(localPort), tcpSpec(remotePort))
	return err
}

// RemoveForward removes the forward bound to tcp:localPort.
func (a *ADB) RemoveForward(ctx context.Context, serial string, localPort int) error {
	_, err := a.exec(ctx, "forward --remove", serial, "forward", "--remove", tcpSpec(localPort))
	return err
}

// Shell runs command in the device shell.
func (a *ADB) Shell(ctx context.Context, serial, command string) (string, error) {
	return a.exec(ctx, "shell", serial, "shell", command)
}

// Push copies a host file onto the device.
func (a *ADB) Push(ctx context.Context, serial, localPath, remotePath string) error {
	_, err := a.exec(ctx, "push", serial, "push", localPath, remotePath)
	return err
}

// Pull copies a device file onto the host.
func (a *ADB) Pull(ctx context.Context, serial, remotePath, localPath string) error {
	_, err := a.exec(ctx, "pull", serial, "pull", remotePath, localPath)
	return err
}

// GetProp reads a system property.
func (a *ADB) GetProp(ctx context.Context, serial, key string) (string, error) {
	return a.exec(ctx, "getprop", serial, "shell", "getprop", key)
}

func tcpSpec(port int) string {
	return "tcp:" + strconv.Itoa(port)
}

// parseDevices parses `adb devices` output. The header line and daemon
// chatter are ignored.
func parseDevices(output string) []DeviceState {
	var devices []DeviceState
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		devices = append(devices, DeviceState{Serial: parts[0], State: parts[1]})
	}
	return devices
}
