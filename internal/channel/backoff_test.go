package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(250 * time.Millisecond)

	assert.Equal(t, 250*time.Millisecond, b.Delay(1))
	assert.Equal(t, 250*time.Millisecond, b.Delay(10))
}

func TestExponentialBackoff_DoublesAndCaps(t *testing.T) {
	b := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, time.Second, b.Delay(50))
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Max: time.Second, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestRetryPolicy_AtLeastOneAttempt(t *testing.T) {
	assert.Equal(t, 1, RetryPolicy{}.attempts())
	assert.Equal(t, time.Duration(0), RetryPolicy{}.delay(1))
	assert.Equal(t, 4, RetryPolicy{Attempts: 4}.attempts())
}
