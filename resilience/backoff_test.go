package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearBackOff(t *testing.T) {
	t.Parallel()

	b := &LinearBackOff{
		InitialInterval: time.Second,
		Increment:       500 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 1500*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff(), "capped at MaxInterval")

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestLinearBackOff_Jitter(t *testing.T) {
	t.Parallel()

	b := &LinearBackOff{
		InitialInterval: time.Second,
		Increment:       500 * time.Millisecond,
		MaxInterval:     time.Minute,
		JitterFactor:    0.2,
	}

	bounds := [][2]time.Duration{
		{800 * time.Millisecond, 1200 * time.Millisecond},
		{1200 * time.Millisecond, 1800 * time.Millisecond},
		{1600 * time.Millisecond, 2400 * time.Millisecond},
		{2000 * time.Millisecond, 3000 * time.Millisecond},
	}
	for i, want := range bounds {
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, want[0], "attempt %d", i)
		assert.LessOrEqual(t, d, want[1], "attempt %d", i)
	}
}

func TestBackOffConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, &LinearBackOff{
		InitialInterval: 500 * time.Millisecond,
		Increment:       500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		JitterFactor:    DefaultJitterFactor,
	}, NewLinearBackOff())
	assert.Equal(t, &DecorrelatedJitterBackOff{
		Base: 500 * time.Millisecond,
		Cap:  30 * time.Second,
	}, NewDecorrelatedJitterBackOff())
	assert.Equal(t, &ConstantBackOffWithJitter{
		Interval:     time.Second,
		JitterFactor: DefaultJitterFactor,
	}, NewConstantBackOffWithJitter())
}

func TestDecorrelatedJitterBackOff(t *testing.T) {
	t.Parallel()

	t.Run("given default config, then every wait stays within base and cap", func(t *testing.T) {
		b := NewDecorrelatedJitterBackOff()
		b.Reset()
		for range 50 {
			d := b.NextBackOff()
			assert.GreaterOrEqual(t, d, b.Base)
			assert.LessOrEqual(t, d, b.Cap)
		}
	})

	t.Run("given a previous wait, then the next is at most three times it", func(t *testing.T) {
		b := &DecorrelatedJitterBackOff{Base: 100 * time.Millisecond, Cap: 2 * time.Second}
		prev := b.Base
		for range 50 {
			d := b.NextBackOff()
			assert.LessOrEqual(t, d, min(3*prev, b.Cap))
			prev = d
		}
	})
}

func TestConstantBackOffWithJitter(t *testing.T) {
	t.Parallel()

	b := NewConstantBackOffWithJitter()
	for range 50 {
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestExponentialBackOff(t *testing.T) {
	t.Parallel()

	t.Run("given zero jitter, then default jitter applies", func(t *testing.T) {
		cfg := DefaultRetryConfig()
		cfg.JitterFactor = 0
		assert.InEpsilon(t, DefaultJitterFactor, ExponentialBackOff(cfg).RandomizationFactor, 0.001)
	})

	t.Run("given default config, then first wait is around the initial interval", func(t *testing.T) {
		d := ExponentialBackOff(DefaultRetryConfig()).NextBackOff()
		assert.GreaterOrEqual(t, d, 250*time.Millisecond)
		assert.LessOrEqual(t, d, 750*time.Millisecond)
	})
}
