package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/httpclient"
)

// Classifier decides from the taxonomy pair of a failure whether it is worth
// another attempt (retry) or counts against the service (breaker).
type Classifier func(category httpclient.StatusCategory, kind httpclient.ErrorKind) bool

// DefaultClassifier retries failures that are likely transient:
//
//   - connectivity failures and timeouts
//   - 429 Too Many Requests
//   - 502 Bad Gateway, 503 Service Unavailable, 504 Gateway Timeout
//
// It never retries 500, other 4xx, conversion failures, cancellation or
// unreachable hosts (TLS and DNS not-found failures).
func DefaultClassifier(_ httpclient.StatusCategory, kind httpclient.ErrorKind) bool {
	switch kind {
	case httpclient.KindConnectivity,
		httpclient.KindTimeout,
		httpclient.KindTooManyRequests,
		httpclient.KindBadGateway,
		httpclient.KindServiceUnavailable,
		httpclient.KindGatewayTimeout:
		return true
	}
	return false
}

// RetryServerErrors retries everything DefaultClassifier does plus any 5xx.
func RetryServerErrors(category httpclient.StatusCategory, kind httpclient.ErrorKind) bool {
	return category == httpclient.CategoryServerError || DefaultClassifier(category, kind)
}

// RetryConfig holds the retry behaviour.
//
// MaxAttempts counts the first attempt: 1 disables retries. MaxElapsedTime
// bounds the whole sequence including waits; 0 leaves only MaxAttempts.
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64

	// JitterFactor randomises each wait by ±JitterFactor (0.5 means ±50%).
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsedTime  = 2 * time.Minute
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig returns 3 retries (500ms, 1s, 2s) within 2 minutes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// AggressiveRetryConfig returns 5 retries starting at 200ms within 5
// minutes, for idempotent calls that must succeed.
func AggressiveRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     6,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     time.Minute,
		MaxElapsedTime:  5 * time.Minute,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// ConservativeRetryConfig returns 2 retries starting at 1s within 30s, for
// rate limited or expensive services.
func ConservativeRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// NoRetryConfig disables retries.
func NoRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// RetryPolicy is a RetryConfig bound to a backoff strategy and classifier.
type RetryPolicy struct {
	MaxAttempts    uint
	MaxElapsedTime time.Duration

	// Backoff returns a fresh strategy for one retry sequence. Nil uses the
	// exponential strategy of the config the policy was built from.
	Backoff func() backoff.BackOff

	// Classifier selects retryable failures. Nil means DefaultClassifier.
	Classifier Classifier
}

// NewRetryPolicy builds a policy from cfg using exponential backoff.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		MaxElapsedTime: cfg.MaxElapsedTime,
		Backoff:        func() backoff.BackOff { return ExponentialBackOff(cfg) },
		Classifier:     DefaultClassifier,
	}
}

// WithMaxAttempts returns a copy of p allowing n attempts.
func (p RetryPolicy) WithMaxAttempts(n uint) RetryPolicy {
	p.MaxAttempts = n
	return p
}

// Enabled reports whether more than one attempt is allowed.
func (p RetryPolicy) Enabled() bool { return p.MaxAttempts > 1 }

// Retryable reports whether err should be retried under p.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	classify := p.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}
	category, kind := httpclient.ClassifyError(err)
	if kind == httpclient.KindCanceled {
		return false
	}
	return classify(category, kind)
}

func (p RetryPolicy) newBackoff() backoff.BackOff {
	var b backoff.BackOff
	if p.Backoff != nil {
		b = p.Backoff()
	}
	if b == nil {
		b = ExponentialBackOff(DefaultRetryConfig())
	}
	b.Reset()
	return b
}

// Retrier runs attempts under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	cfg    *config
}

// NewRetrier creates a Retrier for policy.
func NewRetrier(policy RetryPolicy, opts ...Option) *Retrier {
	return &Retrier{policy: policy, cfg: newConfig(opts...)}
}

// Policy returns the policy the retrier was built with.
func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Do runs attempt until it succeeds, fails with a non-retryable error or the
// policy is exhausted, waiting between attempts. name labels metrics.
func (r *Retrier) Do(ctx context.Context, name string, attempt func(context.Context) (any, error)) (any, error) {
	return r.DoWith(ctx, r.policy, name, attempt)
}

// DoWith is Do under an overriding policy, e.g. a per-endpoint attempt count.
func (r *Retrier) DoWith(
	ctx context.Context,
	p RetryPolicy,
	name string,
	attempt func(context.Context) (any, error),
) (any, error) {
	if !p.Enabled() {
		return attempt(ctx)
	}

	var (
		retries int
		start   = time.Now()
		attrs   = r.attributes(name)
		span    = trace.SpanFromContext(ctx)
	)

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.newBackoff()),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			retries++
			r.onRetry(ctx, span, attrs, retries, err, next)
		}),
	}
	if p.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsedTime))
	}

	v, err := backoff.Retry(ctx, func() (any, error) {
		v, err := attempt(ctx)
		if err != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	r.finish(ctx, span, attrs, retries, start, err)
	return v, err
}

// DoAsync is the non-blocking form of Do. Waits are timers, not parked
// goroutines. Cancelling the returned future cancels the attempt in flight
// and any pending wait.
func (r *Retrier) DoAsync(
	ctx context.Context,
	p RetryPolicy,
	name string,
	attempt func(context.Context) *async.Future[any],
) *async.Future[any] {
	if !p.Enabled() {
		return attempt(ctx)
	}

	var (
		out   = async.New[any]()
		b     = p.newBackoff()
		start = time.Now()
		attrs = r.attributes(name)
		span  = trace.SpanFromContext(ctx)

		mu      sync.Mutex
		current *async.Future[any]
		timer   *time.Timer
		stopped bool
	)

	halt := func() {
		mu.Lock()
		stopped = true
		t, c := timer, current
		mu.Unlock()
		if t != nil {
			t.Stop()
		}
		if c != nil {
			c.Cancel()
		}
	}
	out.OnCancel(halt)
	stopCtx := context.AfterFunc(ctx, func() {
		halt()
		out.Fail(ctx.Err())
	})
	out.OnComplete(func(any, error) { stopCtx() })

	var run func(n uint)
	run = func(n uint) {
		mu.Lock()
		if stopped {
			mu.Unlock()
			if err := ctx.Err(); err != nil {
				out.Fail(err)
			}
			return
		}
		f := attempt(ctx)
		current = f
		mu.Unlock()

		f.OnComplete(func(v any, err error) {
			if err == nil {
				r.finish(ctx, span, attrs, int(n-1), start, nil)
				out.Complete(v)
				return
			}
			next := backoff.Stop
			if n < p.MaxAttempts && p.Retryable(err) {
				next = b.NextBackOff()
			}
			if next == backoff.Stop ||
				(p.MaxElapsedTime > 0 && time.Since(start)+next > p.MaxElapsedTime) {
				r.finish(ctx, span, attrs, int(n-1), start, err)
				out.Fail(err)
				return
			}

			r.onRetry(ctx, span, attrs, int(n), err, next)
			mu.Lock()
			if !stopped {
				timer = time.AfterFunc(next, func() { run(n + 1) })
			}
			mu.Unlock()
		})
	}
	run(1)
	return out
}

func (r *Retrier) attributes(name string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("restify.endpoint", name)}
	if r.cfg.serviceName != "" {
		attrs = append(attrs, attribute.String("service.name", r.cfg.serviceName))
	}
	return attrs
}

func (r *Retrier) onRetry(
	ctx context.Context,
	span trace.Span,
	attrs []attribute.KeyValue,
	retry int,
	err error,
	next time.Duration,
) {
	_, kind := httpclient.ClassifyError(err)
	r.cfg.metrics.recordRetryAttempt(ctx, attrs, retry)
	r.cfg.logger.Debug().
		Err(err).
		Int("retry", retry).
		Str("error.type", kind.String()).
		Dur("delay", next).
		Msg("retrying call")

	if span.IsRecording() {
		span.AddEvent("http.retry", trace.WithAttributes(
			attribute.Int("retry.attempt", retry),
			attribute.Int64("retry.delay_ms", next.Milliseconds()),
			attribute.String("retry.reason", kind.String()),
		))
	}
}

func (r *Retrier) finish(
	ctx context.Context,
	span trace.Span,
	attrs []attribute.KeyValue,
	retries int,
	start time.Time,
	err error,
) {
	r.cfg.metrics.recordRetryDuration(ctx, attrs, time.Since(start))
	if retries == 0 {
		return
	}
	span.SetAttributes(
		attribute.Int("http.retry_count", retries),
		attribute.Bool("http.retry_success", err == nil),
	)
	if err != nil {
		r.cfg.metrics.recordRetryExhausted(ctx, attrs)
	}
}
