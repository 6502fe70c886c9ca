package resilience

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/kroma-labs/restify-go/resilience"

// Option configures a Retrier or a Breaker.
type Option func(*config)

type config struct {
	serviceName   string
	meterProvider metric.MeterProvider
	logger        zerolog.Logger

	metrics *metrics
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		meterProvider: otel.GetMeterProvider(),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var err error
	cfg.metrics, err = newMetrics(cfg.meterProvider.Meter(scope))
	if err != nil {
		cfg.logger.Warn().Err(err).Msg("resilience: metrics disabled")
	}
	return cfg
}

// WithServiceName names the remote service in metrics and breaker names.
func WithServiceName(name string) Option {
	return func(c *config) {
		c.serviceName = name
	}
}

// WithMeterProvider sets the meter provider. Default: otel global.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// WithLogger sets the logger for retry and state change events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
