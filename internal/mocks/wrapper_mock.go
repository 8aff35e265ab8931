package mocks

import (
	"context"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockWrapper is a mock implementation of the device.Wrapper interface
type MockWrapper struct {
	mock.Mock
	Serial string
}

func (m *MockWrapper) ID() string {
	return m.Serial
}

func (m *MockWrapper) Info(ctx context.Context) (*models.DeviceInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*models.DeviceInfo)
	return info, args.Error(1)
}

func (m *MockWrapper) Execute(ctx context.Context, action string, arguments []string) (any, error) {
	args := m.Called(ctx, action, arguments)
	return args.Get(0), args.Error(1)
}

func (m *MockWrapper) Actions() []string {
	args := m.Called()
	actions, _ := args.Get(0).([]string)
	return actions
}

func (m *MockWrapper) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
