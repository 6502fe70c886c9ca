package invoker

import (
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/codec"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/handler"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/resilience"
)

const scope = "github.com/kroma-labs/restify-go/invoker"

// internalConfig holds the resolved client settings.
type internalConfig struct {
	baseURL     *url.URL
	serviceName string
	transport   httpclient.Transport
	preset      httpclient.Config
	codecs      *codec.Registry

	defaultHeaders []endpoint.Header
	contentType    string
	versionHeader  string
	timeout        time.Duration
	version        string
	gzip           bool
	rateLimit      *httpclient.RateLimitConfig
	chaos          *httpclient.ChaosConfig

	// stages are applied to each endpoint's interceptor chain in
	// registration order.
	stages            []func(*httpclient.InterceptorChain)
	responseStages    []httpclient.ResponseInterceptor
	providers         []handler.Provider
	fallbacks         *resilience.FallbackRegistry
	errorFallback     resilience.ErrorResponseFallback
	retry             resilience.RetryPolicy
	breaker           *resilience.BreakerConfig
	breakAllEndpoints bool

	executor       async.Executor
	logger         zerolog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	registerer     prometheus.Registerer

	err error
}

func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		preset:         httpclient.DefaultConfig(),
		codecs:         codec.DefaultRegistry(),
		contentType:    httpclient.DefaultContentType,
		versionHeader:  httpclient.DefaultVersionHeader,
		retry:          resilience.NewRetryPolicy(resilience.DefaultRetryConfig()),
		executor:       async.GoExecutor{},
		logger:         zerolog.Nop(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures a Client.
type Option func(*internalConfig)

// WithConfig applies file or environment settings loaded by LoadConfig.
// Options given after it override individual values.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		if c.BaseURL != "" {
			WithBaseURL(c.BaseURL)(cfg)
		}
		if c.ServiceName != "" {
			cfg.serviceName = c.ServiceName
		}
		if preset, err := transportPreset(c.Transport); err != nil {
			cfg.err = err
		} else {
			cfg.preset = preset
		}
		cfg.timeout = c.Timeout
		cfg.version = c.Version
		if c.VersionHeader != "" {
			cfg.versionHeader = c.VersionHeader
		}
		if c.ContentType != "" {
			cfg.contentType = c.ContentType
		}
		cfg.gzip = c.Gzip
		if c.Retry.MaxAttempts > 0 {
			cfg.retry = resilience.NewRetryPolicy(c.Retry.RetryConfig())
		}
		if c.Breaker.Enabled {
			bc := c.Breaker.BreakerConfig()
			cfg.breaker = &bc
			cfg.breakAllEndpoints = c.Breaker.AllEndpoints
		}
		if c.RateLimit.Enabled {
			rl := c.RateLimit.RateLimitConfig()
			cfg.rateLimit = &rl
		}
		if c.Chaos.Enabled {
			cc := c.Chaos.ChaosConfig()
			cfg.chaos = &cc
		}
	}
}

// WithBaseURL resolves relative endpoint paths against u.
func WithBaseURL(u string) Option {
	return func(cfg *internalConfig) {
		parsed, err := url.Parse(u)
		if err != nil {
			cfg.err = fmt.Errorf("invoker: base url: %w", err)
			return
		}
		cfg.baseURL = parsed
	}
}

// WithServiceName labels spans, metrics and breaker names.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.serviceName = name
	}
}

// WithTransport replaces the default NetTransport.
func WithTransport(t httpclient.Transport) Option {
	return func(cfg *internalConfig) {
		cfg.transport = t
	}
}

// WithTransportConfig selects the NetTransport preset. Ignored when
// WithTransport is used.
func WithTransportConfig(c httpclient.Config) Option {
	return func(cfg *internalConfig) {
		cfg.preset = c
	}
}

// WithCodecs replaces the codec registry.
func WithCodecs(r *codec.Registry) Option {
	return func(cfg *internalConfig) {
		cfg.codecs = r
	}
}

// WithDefaultHeader adds a header to every request unless already present.
func WithDefaultHeader(name, value string) Option {
	return func(cfg *internalConfig) {
		cfg.defaultHeaders = append(cfg.defaultHeaders, endpoint.Header{Name: name, Value: value})
	}
}

// WithContentType sets the Content-Type used for request bodies.
func WithContentType(ct string) Option {
	return func(cfg *internalConfig) {
		cfg.contentType = ct
	}
}

// WithVersionHeader sets the header that carries the endpoint version.
func WithVersionHeader(name string) Option {
	return func(cfg *internalConfig) {
		cfg.versionHeader = name
	}
}

// WithDefaultTimeout bounds each attempt of endpoints without a timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.timeout = d
	}
}

// WithDefaultVersion is sent for endpoints without a version.
func WithDefaultVersion(v string) Option {
	return func(cfg *internalConfig) {
		cfg.version = v
	}
}

// WithGzip compresses request bodies and accepts gzip responses.
func WithGzip() Option {
	return func(cfg *internalConfig) {
		cfg.gzip = true
	}
}

// WithRateLimit limits requests per endpoint.
func WithRateLimit(rl httpclient.RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.rateLimit = &rl
	}
}

// WithChaos wraps the transport in an httpclient.ChaosTransport that injects
// latency, network errors and error statuses. Retry, breaker and fallback
// see the injected failures exactly as they would see real ones.
//
//	client, _ := invoker.New(
//	    invoker.WithBaseURL("https://staging.example.com"),
//	    invoker.WithChaos(httpclient.ChaosConfig{ErrorRate: 0.1, LatencyMs: 50}),
//	)
func WithChaos(c httpclient.ChaosConfig) Option {
	return func(cfg *internalConfig) {
		cfg.chaos = &c
	}
}

// WithRequestInterceptor appends a request interceptor.
func WithRequestInterceptor(i httpclient.RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.stages = append(cfg.stages, func(c *httpclient.InterceptorChain) {
			c.AddRequestInterceptor(i)
		})
	}
}

// WithAsyncRequestInterceptor appends an asynchronous request interceptor.
func WithAsyncRequestInterceptor(i httpclient.AsyncRequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.stages = append(cfg.stages, func(c *httpclient.InterceptorChain) {
			c.AddAsyncRequestInterceptor(i)
		})
	}
}

// WithResponseInterceptor appends a response interceptor.
func WithResponseInterceptor(i httpclient.ResponseInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.responseStages = append(cfg.responseStages, i)
	}
}

// WithProviders registers handler providers. They are tried before the
// built-in ones, in the order given.
func WithProviders(providers ...handler.Provider) Option {
	return func(cfg *internalConfig) {
		cfg.providers = append(cfg.providers, providers...)
	}
}

// WithFallbacks substitutes registered fallbacks for failed calls.
func WithFallbacks(r *resilience.FallbackRegistry) Option {
	return func(cfg *internalConfig) {
		cfg.fallbacks = r
	}
}

// WithErrorResponseFallback converts selected non-2xx responses into values.
func WithErrorResponseFallback(f resilience.ErrorResponseFallback) Option {
	return func(cfg *internalConfig) {
		cfg.errorFallback = f
	}
}

// WithRetryPolicy sets the client retry policy.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.retry = p
	}
}

// WithRetryConfig sets the client retry policy from a preset.
func WithRetryConfig(c resilience.RetryConfig) Option {
	return WithRetryPolicy(resilience.NewRetryPolicy(c))
}

// WithBreaker enables circuit breaking for endpoints that opt in through
// endpoint.Options.CircuitBreaker.
func WithBreaker(bc resilience.BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.breaker = &bc
	}
}

// WithBreakerForAll enables circuit breaking for every endpoint.
func WithBreakerForAll(bc resilience.BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.breaker = &bc
		cfg.breakAllEndpoints = true
	}
}

// WithExecutor runs synchronous work for asynchronous shapes when the
// transport cannot complete on its own.
func WithExecutor(exec async.Executor) Option {
	return func(cfg *internalConfig) {
		if exec != nil {
			cfg.executor = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.logger = logger
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		if mp != nil {
			cfg.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		if tp != nil {
			cfg.tracerProvider = tp
		}
	}
}

// WithPrometheusRegisterer also exports call metrics to a Prometheus
// registry.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *internalConfig) {
		cfg.registerer = reg
	}
}

// newTransport returns the configured transport, or a NetTransport sharing
// the client's telemetry, wrapped for chaos injection when enabled.
func (cfg *internalConfig) newTransport() httpclient.Transport {
	t := cfg.transport
	if t == nil {
		t = httpclient.NewNetTransport(
			httpclient.WithConfig(cfg.preset),
			httpclient.WithServiceName(cfg.serviceName),
			httpclient.WithLogger(cfg.logger),
			httpclient.WithMeterProvider(cfg.meterProvider),
			httpclient.WithTracerProvider(cfg.tracerProvider),
		)
	}
	if cfg.chaos != nil {
		t = httpclient.NewChaosTransport(t, *cfg.chaos)
	}
	return t
}

// resilienceOptions share the client's telemetry with the retry and breaker.
func (cfg *internalConfig) resilienceOptions() []resilience.Option {
	return []resilience.Option{
		resilience.WithServiceName(cfg.serviceName),
		resilience.WithMeterProvider(cfg.meterProvider),
		resilience.WithLogger(cfg.logger),
	}
}
