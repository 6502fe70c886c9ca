package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// ErrChaosInjected is the cause of a simulated network error.
var ErrChaosInjected = errors.New("chaos: simulated network error")

// ChaosConfig configures failure injection for exercising retry, circuit
// breaker and fallback behaviour outside production.
//
//	transport := httpclient.NewChaosTransport(
//	    httpclient.NewNetTransport(),
//	    httpclient.ChaosConfig{LatencyMs: 200, ErrorRate: 0.1},
//	)
type ChaosConfig struct {
	// LatencyMs adds a fixed delay (in milliseconds) to all requests.
	LatencyMs int

	// LatencyJitterMs adds random jitter (0 to LatencyJitterMs) on top of
	// LatencyMs.
	LatencyJitterMs int

	// ErrorRate is the probability (0.0-1.0) of failing with a simulated
	// connection error.
	ErrorRate float64

	// TimeoutRate is the probability (0.0-1.0) of blocking until the request
	// deadline expires.
	TimeoutRate float64

	// StatusRate is the probability (0.0-1.0) of answering with Status
	// instead of calling the wrapped transport.
	StatusRate float64

	// Status is the injected status. Default: 503.
	Status int
}

// Delay returns the total delay to apply, including jitter.
func (c ChaosConfig) Delay() time.Duration {
	delay := time.Duration(c.LatencyMs) * time.Millisecond
	if c.LatencyJitterMs > 0 {
		jitter := time.Duration(rand.IntN(c.LatencyJitterMs)) * time.Millisecond //nolint:gosec
		delay += jitter
	}
	return delay
}

func roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	return rand.Float64() < rate //nolint:gosec
}

// ChaosTransport decorates a Transport with injected latency and failures.
type ChaosTransport struct {
	next   Transport
	config ChaosConfig
}

var _ Transport = (*ChaosTransport)(nil)

// NewChaosTransport wraps next.
func NewChaosTransport(next Transport, cfg ChaosConfig) *ChaosTransport {
	if cfg.Status == 0 {
		cfg.Status = http.StatusServiceUnavailable
	}
	return &ChaosTransport{next: next, config: cfg}
}

// Execute implements Transport.
func (t *ChaosTransport) Execute(ctx context.Context, out *Outgoing) (*Response, error) {
	req := out.Request()
	if timeout := req.Metadata().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if roll(t.config.TimeoutRate) {
		<-ctx.Done()
		return nil, t.contextError(req, ctx.Err())
	}

	if roll(t.config.ErrorRate) {
		return nil, NewConnectivityError(&net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected})
	}

	if delay := t.config.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, t.contextError(req, ctx.Err())
		}
	}

	if roll(t.config.StatusRate) {
		status := Status{Code: t.config.Status, Reason: http.StatusText(t.config.Status)}
		return NewResponse(req, status, Headers{}, nil), nil
	}

	return t.next.Execute(ctx, out)
}

func (t *ChaosTransport) contextError(req Request, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", req, context.Canceled)
	}
	return NewConnectivityError(err)
}
