package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindOnly(t *testing.T) {
	err := Wrap(KindCommunicationFailed, "D1", "service", errors.New("connection reset"))

	assert.ErrorIs(t, err, ErrCommunicationFailed)
	assert.NotErrorIs(t, err, ErrForwardingFailed)

	wrapped := fmt.Errorf("battery: %w", err)
	assert.ErrorIs(t, wrapped, ErrCommunicationFailed)
}

func TestError_MessageCarriesDeviceAndComponent(t *testing.T) {
	err := New(KindComponentValidationFailed, "emulator-5554", "automation", "sentinel mismatch")

	assert.Equal(t, "component_validation_failed [device=emulator-5554 component=automation]: sentinel mismatch", err.Error())
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("adb: device offline")
	err := Wrap(KindForwardingFailed, "D1", "", cause)

	assert.ErrorIs(t, err, cause)
}

func TestDescribe(t *testing.T) {
	assert.Nil(t, Describe(nil))

	desc := Describe(New(KindUnknownDevice, "D9", "", "no such device"))
	require.NotNil(t, desc)
	assert.Equal(t, "unknown_device", desc.Kind)
	assert.Equal(t, "D9", desc.DeviceID)

	plain := Describe(errors.New("boom"))
	assert.Equal(t, "action_failed", plain.Kind)
	assert.Equal(t, "boom", plain.Message)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPortExhausted, KindOf(fmt.Errorf("alloc: %w", ErrPortExhausted)))
	assert.Equal(t, KindActionFailed, KindOf(errors.New("plain")))
}
