package channel

import (
	"math/rand"
	"time"

	"github.com/benmeehan/grid-agent/internal/constants"
)

// Backoff decides how long to wait after the given failed attempt (1-based)
// before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff waits the same duration between every pair of attempts.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Delay(int) time.Duration {
	return time.Duration(b)
}

// ExponentialBackoff doubles the delay after every failure up to Max, with
// Jitter (a fraction, e.g. 0.2 for ±20%) applied on top.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Jitter > 0 {
		jitter := float64(d) * b.Jitter * (rand.Float64()*2 - 1)
		d = time.Duration(float64(d) + jitter)
	}
	return d
}

// RetryPolicy bounds the attempts of Connect and Request. The backoff is only
// applied between attempts, never before the first one or after the last one.
type RetryPolicy struct {
	Attempts int
	Backoff  Backoff
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: constants.DefaultRetryLimit,
		Backoff:  ConstantBackoff(constants.DefaultRetryDelay),
	}
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Delay(attempt)
}
