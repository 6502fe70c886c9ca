package resilience

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	_ backoff.BackOff = (*LinearBackOff)(nil)
	_ backoff.BackOff = (*DecorrelatedJitterBackOff)(nil)
	_ backoff.BackOff = (*ConstantBackOffWithJitter)(nil)
)

// LinearBackOff grows the wait by a fixed step per attempt:
//
//	interval(n) = min(MaxInterval, InitialInterval + n*Increment) ± JitterFactor
//
// With InitialInterval=1s, Increment=500ms, JitterFactor=0.2:
//
//	attempt 0: 1.0s  (0.80s - 1.20s)
//	attempt 1: 1.5s  (1.20s - 1.80s)
//	attempt 2: 2.0s  (1.60s - 2.40s)
//	attempt 3: 2.5s  (2.00s - 3.00s)
//
// Use it when a dependency recovers at a steady rate and exponential growth
// would wait too long. Plug it into a policy through RetryPolicy.Backoff:
//
//	policy := resilience.NewRetryPolicy(resilience.DefaultRetryConfig())
//	policy.Backoff = func() backoff.BackOff { return resilience.NewLinearBackOff() }
type LinearBackOff struct {
	InitialInterval time.Duration
	Increment       time.Duration
	MaxInterval     time.Duration
	JitterFactor    float64

	attempt int
}

// NewLinearBackOff returns a LinearBackOff with:
//   - InitialInterval: 500ms
//   - Increment: 500ms
//   - MaxInterval: 30s
//   - JitterFactor: DefaultJitterFactor
func NewLinearBackOff() *LinearBackOff {
	return &LinearBackOff{
		InitialInterval: 500 * time.Millisecond,
		Increment:       500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		JitterFactor:    DefaultJitterFactor,
	}
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() { b.attempt = 0 }

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	interval := b.InitialInterval + time.Duration(b.attempt)*b.Increment
	if b.MaxInterval > 0 && interval > b.MaxInterval {
		interval = b.MaxInterval
	}
	b.attempt++
	return applyJitter(interval, b.JitterFactor)
}

// DecorrelatedJitterBackOff draws each wait from the previous one:
//
//	sleep = random_between(Base, min(Cap, previous_sleep * 3))
//
// The first wait uses Base as previous_sleep. Waits drift upward on average
// but never in lockstep, so many clients retrying the same outage spread
// out better than with plain jitter. With Base=100ms, Cap=2s a run might
// look like 180ms, 420ms, 260ms, 710ms, 2s, 1.4s.
//
// See https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type DecorrelatedJitterBackOff struct {
	Base time.Duration
	Cap  time.Duration

	sleep time.Duration
}

// NewDecorrelatedJitterBackOff returns a DecorrelatedJitterBackOff with:
//   - Base: 500ms
//   - Cap: 30s
func NewDecorrelatedJitterBackOff() *DecorrelatedJitterBackOff {
	return &DecorrelatedJitterBackOff{
		Base: 500 * time.Millisecond,
		Cap:  30 * time.Second,
	}
}

// Reset implements backoff.BackOff.
func (b *DecorrelatedJitterBackOff) Reset() { b.sleep = b.Base }

// NextBackOff implements backoff.BackOff.
func (b *DecorrelatedJitterBackOff) NextBackOff() time.Duration {
	if b.sleep < b.Base {
		b.sleep = b.Base
	}
	upper := min(b.sleep*3, b.Cap)
	b.sleep = randomBetween(b.Base, upper)
	return b.sleep
}

// ConstantBackOffWithJitter waits Interval ± JitterFactor between attempts.
// With Interval=2s, JitterFactor=0.1 every wait falls between 1.8s and 2.2s.
// Polling endpoints that only need to avoid synchronized bursts use it.
type ConstantBackOffWithJitter struct {
	Interval     time.Duration
	JitterFactor float64
}

// NewConstantBackOffWithJitter returns a ConstantBackOffWithJitter with:
//   - Interval: 1s
//   - JitterFactor: DefaultJitterFactor
func NewConstantBackOffWithJitter() *ConstantBackOffWithJitter {
	return &ConstantBackOffWithJitter{
		Interval:     time.Second,
		JitterFactor: DefaultJitterFactor,
	}
}

// Reset implements backoff.BackOff.
func (b *ConstantBackOffWithJitter) Reset() {}

// NextBackOff implements backoff.BackOff.
func (b *ConstantBackOffWithJitter) NextBackOff() time.Duration {
	return applyJitter(b.Interval, b.JitterFactor)
}

// ExponentialBackOff builds the backoff/v5 exponential strategy for cfg.
// It is what a RetryPolicy uses when Backoff is nil. Waits grow as
//
//	interval(n) = min(MaxInterval, InitialInterval * Multiplier^n) ± JitterFactor
//
// so DefaultRetryConfig gives roughly 500ms, 1s, 2s, 4s before
// jitter. A JitterFactor of zero or less falls back to DefaultJitterFactor;
// jitter is never switched off entirely.
func ExponentialBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitter := cfg.JitterFactor
	if jitter <= 0 {
		jitter = DefaultJitterFactor
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxInterval,
	}
	b.Reset()
	return b
}

// applyJitter returns a value in [interval*(1-f), interval*(1+f)].
func applyJitter(interval time.Duration, f float64) time.Duration {
	if f <= 0 || interval <= 0 {
		return interval
	}
	f = min(f, 1)
	delta := float64(interval) * f
	//nolint:gosec // jitter does not need a cryptographic source
	return time.Duration(float64(interval) - delta + rand.Float64()*2*delta)
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if lo >= hi {
		return lo
	}
	//nolint:gosec // jitter does not need a cryptographic source
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}
