package communicators

import (
	"encoding/json"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/models"
)

// ServiceCommunicator talks to the on-device service companion.
type ServiceCommunicator struct {
	communicator
}

// NewServiceCommunicator wraps ch.
func NewServiceCommunicator(deviceID string, ch *ComponentChannel) *ServiceCommunicator {
	return &ServiceCommunicator{communicator{ch: ch, deviceID: deviceID}}
}

func (s *ServiceCommunicator) Ping() error {
	return s.ping()
}

// BatteryState reads the battery as seen by the device.
func (s *ServiceCommunicator) BatteryState() (models.BatteryState, error) {
	var state models.BatteryState
	err := s.call(constants.RequestBatteryState, nil, &state)
	return state, err
}

// DeviceStatus returns the raw status document reported by the service.
func (s *ServiceCommunicator) DeviceStatus() (json.RawMessage, error) {
	var status json.RawMessage
	err := s.call(constants.RequestDeviceStatus, nil, &status)
	return status, err
}
