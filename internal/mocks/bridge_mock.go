package mocks

import (
	"context"

	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/stretchr/testify/mock"
)

// MockBridge is a mock implementation of the bridge.Bridge interface
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Devices(ctx context.Context) ([]bridge.DeviceState, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]bridge.DeviceState)
	return devices, args.Error(1)
}

func (m *MockBridge) CreateForward(ctx context.Context, serial string, localPort, remotePort int) error {
	args := m.Called(ctx, serial, localPort, remotePort)
	return args.Error(0)
}

func (m *MockBridge) RemoveForward(ctx context.Context, serial string, localPort int) error {
	args := m.Called(ctx, serial, localPort)
	return args.Error(0)
}

func (m *MockBridge) Shell(ctx context.Context, serial, command string) (string, error) {
	args := m.Called(ctx, serial, command)
	return args.String(0), args.Error(1)
}

func (m *MockBridge) Push(ctx context.Context, serial, localPath, remotePath string) error {
	args := m.Called(ctx, serial, localPath, remotePath)
	return args.Error(0)
}

func (m *MockBridge) Pull(ctx context.Context, serial, remotePath, localPath string) error {
	args := m.Called(ctx, serial, remotePath, localPath)
	return args.Error(0)
}

func (m *MockBridge) GetProp(ctx context.Context, serial, key string) (string, error) {
	args := m.Called(ctx, serial, key)
	return args.String(0), args.Error(1)
}
