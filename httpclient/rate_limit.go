package httpclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kroma-labs/restify-go/async"
)

// RateLimitConfig configures per-endpoint rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained rate per endpoint.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	Burst int

	// WaitOnLimit determines behavior when the limit is hit.
	// If true, requests wait for a token (respecting the context).
	// If false, requests fail immediately with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected due to rate limiting.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimiters holds one limiter per endpoint.
type rateLimiters struct {
	cfg      RateLimitConfig
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func (r *rateLimiters) get(key string) *rate.Limiter {
	r.mu.RLock()
	if limiter, ok := r.limiters[key]; ok {
		r.mu.RUnlock()
		return limiter
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, ok := r.limiters[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)
	r.limiters[key] = limiter
	return limiter
}

// RateLimitInterceptor limits requests per endpoint (Metadata.Endpoint, or
// the request method and host when unnamed). In wait mode the chain resumes
// on a timer once a token is available; in fail-fast mode it rejects with
// ErrRateLimited.
//
// A non-positive RequestsPerSecond disables limiting.
func RateLimitInterceptor(cfg RateLimitConfig) AsyncRequestInterceptor {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limiters := &rateLimiters{cfg: cfg, limiters: make(map[string]*rate.Limiter)}

	return func(ctx context.Context, req Request) *async.Future[Request] {
		if cfg.RequestsPerSecond <= 0 {
			return async.Completed(req)
		}

		key := req.Metadata().Endpoint
		if key == "" {
			key = req.Method() + " " + req.URL().Host
		}
		limiter := limiters.get(key)

		if !cfg.WaitOnLimit {
			if !limiter.Allow() {
				return async.Failed[Request](ErrRateLimited)
			}
			return async.Completed(req)
		}

		r := limiter.Reserve()
		if !r.OK() {
			return async.Failed[Request](ErrRateLimited)
		}
		delay := r.Delay()
		if delay == 0 {
			return async.Completed(req)
		}

		f := async.New[Request]()
		timer := time.AfterFunc(delay, func() { f.Complete(req) })
		f.OnCancel(func() {
			if timer.Stop() {
				r.Cancel()
			}
		})
		stop := context.AfterFunc(ctx, func() {
			if timer.Stop() {
				r.Cancel()
				f.Fail(ctx.Err())
			}
		})
		f.OnComplete(func(Request, error) { stop() })
		return f
	}
}
