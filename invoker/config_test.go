package invoker

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/resilience"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("given no file, then the defaults are returned", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("given a file, then it overrides the defaults", func(t *testing.T) {
		path := writeConfig(t, `
base_url: http://api.test
service_name: users
timeout: 2s
gzip: true
retry:
  max_attempts: 2
breaker:
  enabled: true
  consecutive_failures: 3
rate_limit:
  enabled: true
  requests_per_second: 5
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "http://api.test", cfg.BaseURL)
		assert.Equal(t, "users", cfg.ServiceName)
		assert.Equal(t, 2*time.Second, cfg.Timeout)
		assert.True(t, cfg.Gzip)
		assert.Equal(t, uint(2), cfg.Retry.MaxAttempts)
		assert.Equal(t, resilience.DefaultRetryConfig().InitialInterval, cfg.Retry.InitialInterval)
		assert.True(t, cfg.Breaker.Enabled)
		assert.Equal(t, uint32(3), cfg.Breaker.ConsecutiveFailures)
		assert.Equal(t, float64(5), cfg.RateLimit.RequestsPerSecond)
		assert.Equal(t, httpclient.DefaultRateLimitConfig().Burst, cfg.RateLimit.Burst)
	})

	t.Run("given environment variables, then they win over the file", func(t *testing.T) {
		path := writeConfig(t, "service_name: users\nretry:\n  max_attempts: 2\n")
		t.Setenv("RESTIFY_SERVICE_NAME", "orders")
		t.Setenv("RESTIFY_RETRY_MAX_ATTEMPTS", "5")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "orders", cfg.ServiceName)
		assert.Equal(t, uint(5), cfg.Retry.MaxAttempts)
	})

	t.Run("given a missing file, then an error is returned", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "read config")
	})
}

func TestWithConfig(t *testing.T) {
	t.Run("given an unknown transport preset, then New fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Transport = "turbo"

		_, err := New(WithConfig(cfg))
		assert.ErrorContains(t, err, `unknown transport preset "turbo"`)
	})

	t.Run("given a config, then requests follow it", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = "http://api.test/v2"
		cfg.Version = "2024-01"
		cfg.Retry.MaxAttempts = 1

		mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, adaJSON)
		c, err := New(WithConfig(cfg), WithTransport(mock))
		require.NoError(t, err)

		got, err := Invoke[user](context.Background(), c, getUser(endpoint.Of[user]()), 1)
		require.NoError(t, err)
		assert.Equal(t, ada, got)

		rec, _ := mock.LastRequest()
		assert.Equal(t, "http://api.test/v2/users/1", rec.Request.URL().String())
		assert.Equal(t, "2024-01", rec.Request.Header(httpclient.DefaultVersionHeader))
	})

	t.Run("given a redis address, then breaker state is shared", func(t *testing.T) {
		mr := miniredis.RunT(t)

		cfg := DefaultConfig()
		cfg.BaseURL = "http://api.test"
		cfg.Retry.MaxAttempts = 1
		cfg.Breaker.Enabled = true
		cfg.Breaker.AllEndpoints = true
		cfg.Breaker.ConsecutiveFailures = 1
		cfg.Breaker.RedisAddr = mr.Addr()
		require.NotNil(t, cfg.Breaker.BreakerConfig().Store)

		mock := httpclient.NewMockTransport().StubResponse(http.StatusServiceUnavailable, "")
		first, err := New(WithConfig(cfg), WithTransport(mock))
		require.NoError(t, err)
		second, err := New(WithConfig(cfg), WithTransport(mock))
		require.NoError(t, err)

		_, err = first.Invoke(context.Background(), getUser(endpoint.Of[user]()), 1)
		assert.ErrorIs(t, err, httpclient.ErrServiceUnavailable)

		_, err = second.Invoke(context.Background(), getUser(endpoint.Of[user]()), 1)
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
		assert.Equal(t, 1, mock.RequestCount())
	})
}

func TestTransportPreset(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want httpclient.Config
	}{
		{name: "given empty, then default", in: "", want: httpclient.DefaultConfig()},
		{name: "given high-throughput, then its preset", in: "high-throughput", want: httpclient.HighThroughputConfig()},
		{name: "given LOW_LATENCY, then its preset", in: "LOW_LATENCY", want: httpclient.LowLatencyConfig()},
		{name: "given conservative, then its preset", in: "conservative", want: httpclient.ConservativeConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transportPreset(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
