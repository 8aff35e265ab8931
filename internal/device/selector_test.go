package device

import (
	"context"
	"errors"
	"testing"

	"github.com/benmeehan/grid-agent/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSelector_FirstMatchWinsAndFallback(t *testing.T) {
	s := NewSelector("default", 0).
		Register("pixel-14", All(ManufacturerIs("Google"), ReleaseSatisfies(">= 14")), 3).
		Register("google", ManufacturerIs("google"), 2).
		Register("old", APILevelBelow(21), 1)

	name, impl := s.Resolve(Properties{Manufacturer: "Google", Release: "14"})
	assert.Equal(t, "pixel-14", name)
	assert.Equal(t, 3, impl)

	name, _ = s.Resolve(Properties{Manufacturer: "google", Release: "12"})
	assert.Equal(t, "google", name)

	name, _ = s.Resolve(Properties{Manufacturer: "HTC", Release: "4.4.2", APILevel: 19})
	assert.Equal(t, "old", name)

	name, impl = s.Resolve(Properties{Manufacturer: "Xiaomi", Release: "13", APILevel: 33})
	assert.Equal(t, "default", name)
	assert.Equal(t, 0, impl)
}

func TestReleaseSatisfies_UnparseableRelease(t *testing.T) {
	pred := ReleaseSatisfies(">= 11")

	assert.False(t, pred(Properties{Release: "UpsideDownCake"}))
	assert.True(t, pred(Properties{Release: "11"}))
	assert.True(t, pred(Properties{Release: "12.1"}))
	assert.False(t, pred(Properties{Release: "10"}))
}

func TestReleaseSatisfies_PanicsOnInvalidConstraint(t *testing.T) {
	assert.Panics(t, func() { ReleaseSatisfies("not a constraint") })
}

func TestAPILevelBelow_UnknownLevel(t *testing.T) {
	assert.False(t, APILevelBelow(20)(Properties{}))
	assert.True(t, APILevelBelow(20)(Properties{APILevel: 19}))
}

func TestDefaultOpsSelector(t *testing.T) {
	s := DefaultOpsSelector()

	name, _ := s.Resolve(Properties{Manufacturer: "samsung", Release: "13", APILevel: 33})
	assert.Equal(t, "samsung-oneui", name)

	name, _ = s.Resolve(Properties{Manufacturer: "samsung", Release: "9", APILevel: 28})
	assert.Equal(t, "generic", name)

	name, _ = s.Resolve(Properties{Manufacturer: "LGE", Release: "4.4", APILevel: 19})
	assert.Equal(t, "legacy", name)
}

func TestFetchProperties(t *testing.T) {
	br := new(mocks.MockBridge)
	br.On("GetProp", mock.Anything, "D1", "ro.product.manufacturer").Return("samsung", nil)
	br.On("GetProp", mock.Anything, "D1", "ro.product.model").Return("SM-G991B", nil)
	br.On("GetProp", mock.Anything, "D1", "ro.build.version.release").Return("13", nil)
	br.On("GetProp", mock.Anything, "D1", "ro.build.version.sdk").Return("33\n", nil)

	props, err := FetchProperties(context.Background(), br, "D1")

	require.NoError(t, err)
	assert.Equal(t, Properties{Serial: "D1", Manufacturer: "samsung", Model: "SM-G991B", Release: "13", APILevel: 33}, props)
}

func TestFetchProperties_BridgeError(t *testing.T) {
	br := new(mocks.MockBridge)
	br.On("GetProp", mock.Anything, "D1", mock.Anything).Return("", errors.New("device offline"))

	_, err := FetchProperties(context.Background(), br, "D1")

	assert.Error(t, err)
}

func TestOps_Variants(t *testing.T) {
	t.Run("generic wakes with keycode", func(t *testing.T) {
		br := new(mocks.MockBridge)
		br.On("Shell", mock.Anything, "D1", "input keyevent KEYCODE_WAKEUP").Return("", nil)

		require.NoError(t, newGenericOps(br, "D1").WakeScreen(context.Background()))
		br.AssertExpectations(t)
	})

	t.Run("legacy leaves a lit screen alone", func(t *testing.T) {
		br := new(mocks.MockBridge)
		br.On("Shell", mock.Anything, "D1", "dumpsys power").Return("mScreenOn=true", nil)

		require.NoError(t, newLegacyOps(br, "D1").WakeScreen(context.Background()))
		br.AssertNotCalled(t, "Shell", mock.Anything, "D1", "input keyevent 26")
	})

	t.Run("legacy presses power when dark", func(t *testing.T) {
		br := new(mocks.MockBridge)
		br.On("Shell", mock.Anything, "D1", "dumpsys power").Return("mScreenOn=false", nil)
		br.On("Shell", mock.Anything, "D1", "input keyevent 26").Return("", nil)

		require.NoError(t, newLegacyOps(br, "D1").WakeScreen(context.Background()))
		br.AssertExpectations(t)
	})

	t.Run("samsung dismisses keyguard", func(t *testing.T) {
		br := new(mocks.MockBridge)
		br.On("Shell", mock.Anything, "D1", "input keyevent KEYCODE_WAKEUP").Return("", nil)
		br.On("Shell", mock.Anything, "D1", "wm dismiss-keyguard").Return("", nil)

		require.NoError(t, newSamsungOps(br, "D1").WakeScreen(context.Background()))
		br.AssertExpectations(t)
	})

	t.Run("generic screen state", func(t *testing.T) {
		br := new(mocks.MockBridge)
		br.On("Shell", mock.Anything, "D1", "dumpsys power").Return("  mWakefulness=Asleep", nil)

		on, err := newGenericOps(br, "D1").ScreenOn(context.Background())
		require.NoError(t, err)
		assert.False(t, on)
	})
}
