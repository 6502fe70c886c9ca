package invoker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kroma-labs/restify-go/httpclient"
)

// metrics records invocation outcomes. A nil *metrics is valid and records
// nothing, as are its nil instruments.
type metrics struct {
	calls      metric.Int64Counter
	duration   metric.Float64Histogram
	resolution metric.Int64Counter

	prom *promMetrics
}

func newMetrics(meter metric.Meter, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{}
	var err error

	m.calls, err = meter.Int64Counter(
		"restify.invocations",
		metric.WithDescription("Number of endpoint invocations by outcome."),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"restify.invocation.duration",
		metric.WithDescription("Duration of endpoint invocations, retries included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1,
			0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.resolution, err = meter.Int64Counter(
		"restify.handler.resolutions",
		metric.WithDescription("Handler chain lookups by cache result."),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	if reg != nil {
		m.prom = newPromMetrics(reg)
	}
	return m, nil
}

func (m *metrics) recordCall(ctx context.Context, name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	attrs := metric.WithAttributes(
		attribute.String("restify.endpoint", name),
		attribute.String("restify.outcome", outcome),
	)
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.prom.observe(name, outcome, d)
}

func (m *metrics) recordResolution(ctx context.Context, name string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.resolution.Add(ctx, 1, metric.WithAttributes(
		attribute.String("restify.endpoint", name),
		attribute.String("restify.cache", result),
	))
}

// outcomeOf labels err with a low-cardinality outcome.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	_, kind := httpclient.ClassifyError(err)
	return kind.String()
}

// promMetrics mirrors the invocation metrics for Prometheus scrapers.
type promMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restify_invocations_total",
		Help: "Total number of endpoint invocations",
	}, []string{"endpoint", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restify_invocation_duration_seconds",
		Help:    "Endpoint invocation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	return &promMetrics{
		calls:    register(reg, calls),
		duration: register(reg, duration),
	}
}

// register adds c to reg, reusing the collector already registered by
// another client.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (p *promMetrics) observe(name, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.calls.WithLabelValues(name, outcome).Inc()
	p.duration.WithLabelValues(name).Observe(d.Seconds())
}
