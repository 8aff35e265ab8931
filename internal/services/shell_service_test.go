package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/grid-agent/internal/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// TestShellService_ExecuteCommand_Success tests the successful execution of a command.
func TestShellService_ExecuteCommand_Success(t *testing.T) {
	// Setup
	br := new(mocks.MockBridge)
	br.On("Shell", mock.Anything, "D1", "echo hello").Return("hello", nil)
	ss := NewShellService(1024, time.Second, br, zerolog.Nop())

	// Execute
	output, err := ss.ExecuteCommand(context.Background(), "D1", "echo hello")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "hello", output)
	br.AssertExpectations(t)
}

// TestShellService_ExecuteCommand_Truncates tests the output size cap.
func TestShellService_ExecuteCommand_Truncates(t *testing.T) {
	// Setup
	br := new(mocks.MockBridge)
	br.On("Shell", mock.Anything, "D1", "logcat -d").Return(strings.Repeat("x", 64), nil)
	ss := NewShellService(16, time.Second, br, zerolog.Nop())

	// Execute
	output, err := ss.ExecuteCommand(context.Background(), "D1", "logcat -d")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 16)+"... (truncated)", output)
}

// TestShellService_ExecuteCommand_Failure tests that bridge output is kept on failure.
func TestShellService_ExecuteCommand_Failure(t *testing.T) {
	// Setup
	br := new(mocks.MockBridge)
	br.On("Shell", mock.Anything, "D1", "ls /nope").Return("ls: /nope: No such file or directory", errors.New("exit status 1"))
	ss := NewShellService(1024, time.Second, br, zerolog.Nop())

	// Execute
	output, err := ss.ExecuteCommand(context.Background(), "D1", "ls /nope")

	// Assert
	assert.Error(t, err)
	assert.Contains(t, output, "No such file")
}

// TestShellService_ExecuteCommand_Timeout tests the timeout of a command execution.
func TestShellService_ExecuteCommand_Timeout(t *testing.T) {
	// Setup
	br := new(mocks.MockBridge)
	br.On("Shell", mock.Anything, "D1", "sleep 2").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", errors.New("signal: killed"))
	ss := NewShellService(1024, 50*time.Millisecond, br, zerolog.Nop())

	// Execute
	output, err := ss.ExecuteCommand(context.Background(), "D1", "sleep 2")

	// Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Empty(t, output)
}
