package mocks

import (
	"context"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockSender is a mock implementation of the router.Sender interface
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, kind models.MessageType, payload any) error {
	args := m.Called(ctx, kind, payload)
	return args.Error(0)
}
