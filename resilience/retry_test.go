package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/httpclient"
)

func statusErr(code int) error {
	return &httpclient.ResponseError{Status: httpclient.Status{Code: code, Reason: http.StatusText(code)}}
}

func fastPolicy(attempts uint) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Classifier:  DefaultClassifier,
	}
}

func TestDefaultClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "given connectivity error, then retry", err: httpclient.NewConnectivityError(errors.New("connection refused")), want: true},
		{name: "given timeout, then retry", err: context.DeadlineExceeded, want: true},
		{name: "given 429, then retry", err: statusErr(http.StatusTooManyRequests), want: true},
		{name: "given 502, then retry", err: statusErr(http.StatusBadGateway), want: true},
		{name: "given 503, then retry", err: statusErr(http.StatusServiceUnavailable), want: true},
		{name: "given 504, then retry", err: statusErr(http.StatusGatewayTimeout), want: true},
		{name: "given 500, then no retry", err: statusErr(http.StatusInternalServerError), want: false},
		{name: "given 404, then no retry", err: statusErr(http.StatusNotFound), want: false},
		{name: "given conversion error, then no retry", err: &httpclient.ConversionError{Op: "read"}, want: false},
		{name: "given cancellation, then no retry", err: context.Canceled, want: false},
	}

	p := fastPolicy(3)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Retryable(tt.err))
		})
	}

	t.Run("given RetryServerErrors, then 500 is retried", func(t *testing.T) {
		p := fastPolicy(3)
		p.Classifier = RetryServerErrors
		assert.True(t, p.Retryable(statusErr(http.StatusInternalServerError)))
	})
}

func TestRetryConfigPresets(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	assert.Equal(t, uint(4), cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 2*time.Minute, cfg.MaxElapsedTime)

	assert.True(t, NewRetryPolicy(AggressiveRetryConfig()).Enabled())
	assert.True(t, NewRetryPolicy(ConservativeRetryConfig()).Enabled())
	assert.False(t, NewRetryPolicy(NoRetryConfig()).Enabled())
	assert.False(t, NewRetryPolicy(DefaultRetryConfig()).WithMaxAttempts(1).Enabled())
}

func TestRetrier_Do(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		attempts     uint
		outcomes     []error
		wantErr      error
		wantAttempts int32
	}{
		{
			name:         "given two transient failures, then third attempt succeeds",
			attempts:     3,
			outcomes:     []error{statusErr(503), statusErr(503), nil},
			wantAttempts: 3,
		},
		{
			name:         "given persistent failure, then last outcome is final",
			attempts:     3,
			outcomes:     []error{statusErr(503), statusErr(502), statusErr(504)},
			wantErr:      httpclient.ErrGatewayTimeout,
			wantAttempts: 3,
		},
		{
			name:         "given non retryable failure, then single attempt",
			attempts:     3,
			outcomes:     []error{statusErr(404)},
			wantErr:      httpclient.ErrNotFound,
			wantAttempts: 1,
		},
		{
			name:         "given retries disabled, then single attempt",
			attempts:     1,
			outcomes:     []error{statusErr(503)},
			wantErr:      httpclient.ErrServiceUnavailable,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetrier(fastPolicy(tt.attempts))

			var n atomic.Int32
			v, err := r.Do(context.Background(), "getUser", func(context.Context) (any, error) {
				i := n.Add(1) - 1
				if err := tt.outcomes[min(int(i), len(tt.outcomes)-1)]; err != nil {
					return nil, err
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantAttempts, n.Load())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var perm *backoff.PermanentError
				assert.NotErrorAs(t, err, &perm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", v)
		})
	}
}

func TestRetrier_DoWith_Override(t *testing.T) {
	t.Parallel()

	r := NewRetrier(fastPolicy(5))
	var n int
	_, err := r.DoWith(context.Background(), r.Policy().WithMaxAttempts(2), "getUser",
		func(context.Context) (any, error) {
			n++
			return nil, statusErr(503)
		})
	require.ErrorIs(t, err, httpclient.ErrServiceUnavailable)
	assert.Equal(t, 2, n)
}

func TestRetrier_DoAsync(t *testing.T) {
	t.Parallel()

	t.Run("given transient failures, then resolves with the success", func(t *testing.T) {
		r := NewRetrier(fastPolicy(3))
		var n atomic.Int32
		f := r.DoAsync(context.Background(), r.Policy(), "getUser", func(context.Context) *async.Future[any] {
			if n.Add(1) < 3 {
				return async.Failed[any](statusErr(503))
			}
			return async.Completed[any]("ok")
		})

		v, err := f.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, int32(3), n.Load())
	})

	t.Run("given exhaustion, then fails with the last error", func(t *testing.T) {
		r := NewRetrier(fastPolicy(2))
		f := r.DoAsync(context.Background(), r.Policy(), "getUser", func(context.Context) *async.Future[any] {
			return async.Failed[any](statusErr(502))
		})

		_, err := f.Get(context.Background())
		require.ErrorIs(t, err, httpclient.ErrBadGateway)
	})

	t.Run("given cancellation during wait, then no further attempts", func(t *testing.T) {
		p := fastPolicy(5)
		p.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }
		r := NewRetrier(p)

		var n atomic.Int32
		f := r.DoAsync(context.Background(), p, "getUser", func(context.Context) *async.Future[any] {
			n.Add(1)
			return async.Failed[any](statusErr(503))
		})

		require.True(t, f.Cancel())
		_, err := f.Get(context.Background())
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), n.Load())
	})

	t.Run("given context done during wait, then fails with context error", func(t *testing.T) {
		p := fastPolicy(5)
		p.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }
		r := NewRetrier(p)

		ctx, cancel := context.WithCancel(context.Background())
		f := r.DoAsync(ctx, p, "getUser", func(context.Context) *async.Future[any] {
			return async.Failed[any](statusErr(503))
		})
		cancel()

		_, err := f.Get(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetrier_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r := NewRetrier(fastPolicy(3), WithMeterProvider(mp), WithServiceName("users"))
	_, err := r.Do(context.Background(), "getUser", func(context.Context) (any, error) {
		return nil, statusErr(503)
	})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), counterSum(t, rm, "http.client.retry.attempts"))
	assert.Equal(t, int64(1), counterSum(t, rm, "http.client.retry.exhausted"))
}

func counterSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
