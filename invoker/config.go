package invoker

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/resilience"
)

// EnvPrefix prefixes environment overrides read by LoadConfig, e.g.
// RESTIFY_BASE_URL or RESTIFY_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "RESTIFY"

// Config is the file and environment form of the client settings.
type Config struct {
	BaseURL     string `mapstructure:"base_url"`
	ServiceName string `mapstructure:"service_name"`

	// Transport names an httpclient preset: default, high_throughput,
	// low_latency or conservative.
	Transport string `mapstructure:"transport"`

	Timeout       time.Duration `mapstructure:"timeout"`
	Version       string        `mapstructure:"version"`
	VersionHeader string        `mapstructure:"version_header"`
	ContentType   string        `mapstructure:"content_type"`
	Gzip          bool          `mapstructure:"gzip"`

	Retry     RetrySettings     `mapstructure:"retry"`
	Breaker   BreakerSettings   `mapstructure:"breaker"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Chaos     ChaosSettings     `mapstructure:"chaos"`
}

// RetrySettings mirrors resilience.RetryConfig.
type RetrySettings struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
	Multiplier      float64       `mapstructure:"multiplier"`
	JitterFactor    float64       `mapstructure:"jitter_factor"`
}

// BreakerSettings mirrors resilience.BreakerConfig. A non-empty RedisAddr
// shares breaker state through Redis.
type BreakerSettings struct {
	Enabled             bool          `mapstructure:"enabled"`
	AllEndpoints        bool          `mapstructure:"all_endpoints"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	FailureThreshold    uint32        `mapstructure:"failure_threshold"`
	FailureRatio        float64       `mapstructure:"failure_ratio"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	RedisAddr           string        `mapstructure:"redis_addr"`
}

// RateLimitSettings mirrors httpclient.RateLimitConfig.
type RateLimitSettings struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	Wait              bool    `mapstructure:"wait"`
}

// ChaosSettings mirrors httpclient.ChaosConfig. Keep it disabled outside
// test and staging environments.
type ChaosSettings struct {
	Enabled         bool    `mapstructure:"enabled"`
	LatencyMs       int     `mapstructure:"latency_ms"`
	LatencyJitterMs int     `mapstructure:"latency_jitter_ms"`
	ErrorRate       float64 `mapstructure:"error_rate"`
	TimeoutRate     float64 `mapstructure:"timeout_rate"`
	StatusRate      float64 `mapstructure:"status_rate"`
	Status          int     `mapstructure:"status"`
}

// DefaultConfig returns the settings New uses without options.
func DefaultConfig() Config {
	retry := resilience.DefaultRetryConfig()
	breaker := resilience.DefaultBreakerConfig()
	rl := httpclient.DefaultRateLimitConfig()

	return Config{
		Transport:     "default",
		VersionHeader: httpclient.DefaultVersionHeader,
		ContentType:   httpclient.DefaultContentType,
		Retry: RetrySettings{
			MaxAttempts:     retry.MaxAttempts,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			MaxElapsedTime:  retry.MaxElapsedTime,
			Multiplier:      retry.Multiplier,
			JitterFactor:    retry.JitterFactor,
		},
		Breaker: BreakerSettings{
			MaxRequests:         breaker.MaxRequests,
			Interval:            breaker.Interval,
			Timeout:             breaker.Timeout,
			FailureThreshold:    breaker.FailureThreshold,
			FailureRatio:        breaker.FailureRatio,
			ConsecutiveFailures: breaker.ConsecutiveFailures,
		},
		RateLimit: RateLimitSettings{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			Wait:              rl.WaitOnLimit,
		},
	}
}

// LoadConfig reads path (YAML, JSON or TOML by extension) over DefaultConfig
// and applies RESTIFY_* environment overrides. An empty path reads the
// environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("invoker: read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invoker: decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("service_name", cfg.ServiceName)
	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("version", cfg.Version)
	v.SetDefault("version_header", cfg.VersionHeader)
	v.SetDefault("content_type", cfg.ContentType)
	v.SetDefault("gzip", cfg.Gzip)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", cfg.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", cfg.Retry.MaxInterval)
	v.SetDefault("retry.max_elapsed_time", cfg.Retry.MaxElapsedTime)
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)
	v.SetDefault("retry.jitter_factor", cfg.Retry.JitterFactor)

	v.SetDefault("breaker.enabled", cfg.Breaker.Enabled)
	v.SetDefault("breaker.all_endpoints", cfg.Breaker.AllEndpoints)
	v.SetDefault("breaker.max_requests", cfg.Breaker.MaxRequests)
	v.SetDefault("breaker.interval", cfg.Breaker.Interval)
	v.SetDefault("breaker.timeout", cfg.Breaker.Timeout)
	v.SetDefault("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.SetDefault("breaker.failure_ratio", cfg.Breaker.FailureRatio)
	v.SetDefault("breaker.consecutive_failures", cfg.Breaker.ConsecutiveFailures)
	v.SetDefault("breaker.redis_addr", cfg.Breaker.RedisAddr)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.wait", cfg.RateLimit.Wait)

	v.SetDefault("chaos.enabled", cfg.Chaos.Enabled)
	v.SetDefault("chaos.latency_ms", cfg.Chaos.LatencyMs)
	v.SetDefault("chaos.latency_jitter_ms", cfg.Chaos.LatencyJitterMs)
	v.SetDefault("chaos.error_rate", cfg.Chaos.ErrorRate)
	v.SetDefault("chaos.timeout_rate", cfg.Chaos.TimeoutRate)
	v.SetDefault("chaos.status_rate", cfg.Chaos.StatusRate)
	v.SetDefault("chaos.status", cfg.Chaos.Status)
}

// RetryConfig converts the settings.
func (s RetrySettings) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:     s.MaxAttempts,
		InitialInterval: s.InitialInterval,
		MaxInterval:     s.MaxInterval,
		MaxElapsedTime:  s.MaxElapsedTime,
		Multiplier:      s.Multiplier,
		JitterFactor:    s.JitterFactor,
	}
}

// BreakerConfig converts the settings, connecting to Redis when RedisAddr
// is set.
func (s BreakerSettings) BreakerConfig() resilience.BreakerConfig {
	cfg := resilience.DefaultBreakerConfig()
	cfg.MaxRequests = s.MaxRequests
	cfg.Interval = s.Interval
	cfg.Timeout = s.Timeout
	cfg.FailureThreshold = s.FailureThreshold
	cfg.FailureRatio = s.FailureRatio
	cfg.ConsecutiveFailures = s.ConsecutiveFailures
	if s.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
		cfg.Store = resilience.NewRedisStore(rdb)
	}
	return cfg
}

// RateLimitConfig converts the settings.
func (s RateLimitSettings) RateLimitConfig() httpclient.RateLimitConfig {
	return httpclient.RateLimitConfig{
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
		WaitOnLimit:       s.Wait,
	}
}

// ChaosConfig converts the settings.
func (s ChaosSettings) ChaosConfig() httpclient.ChaosConfig {
	return httpclient.ChaosConfig{
		LatencyMs:       s.LatencyMs,
		LatencyJitterMs: s.LatencyJitterMs,
		ErrorRate:       s.ErrorRate,
		TimeoutRate:     s.TimeoutRate,
		StatusRate:      s.StatusRate,
		Status:          s.Status,
	}
}

// transportPreset maps a preset name to the httpclient config.
func transportPreset(name string) (httpclient.Config, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "default":
		return httpclient.DefaultConfig(), nil
	case "high_throughput":
		return httpclient.HighThroughputConfig(), nil
	case "low_latency":
		return httpclient.LowLatencyConfig(), nil
	case "conservative":
		return httpclient.ConservativeConfig(), nil
	}
	return httpclient.Config{}, fmt.Errorf("invoker: unknown transport preset %q", name)
}
