package communicators

import (
	"encoding/json"
	"fmt"

	"github.com/benmeehan/grid-agent/internal/constants"
)

// AutomationCommunicator talks to the on-device automation bridge. Gesture
// and hierarchy documents are passed through untouched.
type AutomationCommunicator struct {
	communicator
}

// NewAutomationCommunicator wraps ch.
func NewAutomationCommunicator(deviceID string, ch *ComponentChannel) *AutomationCommunicator {
	return &AutomationCommunicator{communicator{ch: ch, deviceID: deviceID}}
}

func (a *AutomationCommunicator) Ping() error {
	return a.ping()
}

// PlayGesture forwards a serialized gesture to the automation bridge.
func (a *AutomationCommunicator) PlayGesture(gesture json.RawMessage) error {
	if !json.Valid(gesture) {
		return fmt.Errorf("gesture is not valid JSON")
	}
	return a.call(constants.RequestPlayGesture, gesture, nil)
}

// DumpHierarchy returns the current UI hierarchy document.
func (a *AutomationCommunicator) DumpHierarchy() (json.RawMessage, error) {
	var doc json.RawMessage
	err := a.call(constants.RequestDumpHierarchy, nil, &doc)
	return doc, err
}
