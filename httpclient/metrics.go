package httpclient

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// networkPhase names a connection phase timed by httptrace.
type networkPhase int

const (
	phaseDNS networkPhase = iota
	phaseConnect
	phaseTLS
	phaseTTFB
	numPhases
)

var phaseInstruments = [numPhases]struct {
	name, desc string
}{
	phaseDNS:     {"http.client.dns.duration", "DNS lookup duration in seconds"},
	phaseConnect: {"http.client.connection.duration", "Time to establish HTTP connection in seconds"},
	phaseTLS:     {"http.client.tls.duration", "TLS handshake duration in seconds"},
	phaseTTFB:    {"http.client.ttfb", "Time from request written to first response byte in seconds"},
}

// metrics holds the transport instruments. A nil *metrics records nothing.
type metrics struct {
	requestDuration  metric.Float64Histogram
	requestBodySize  metric.Int64Histogram
	responseBodySize metric.Int64Histogram
	phases           [numPhases]metric.Float64Histogram
	activeRequests   metric.Int64UpDownCounter
	requestErrors    metric.Int64Counter
}

var (
	durationBuckets = []float64{
		0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
	}
	sizeBuckets = []float64{
		0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024,
	}
	networkBuckets = []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	}
)

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m    metrics
		errs []error
	)
	seconds := func(name, desc string, buckets []float64) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		errs = append(errs, err)
		return h
	}
	bytes := func(name, desc string) metric.Int64Histogram {
		h, err := meter.Int64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("By"),
			metric.WithExplicitBucketBoundaries(sizeBuckets...),
		)
		errs = append(errs, err)
		return h
	}

	m.requestDuration = seconds("http.client.request.duration",
		"Duration of one transport attempt in seconds", durationBuckets)
	m.requestBodySize = bytes("http.client.request.body.size", "Size of encoded request bodies in bytes")
	m.responseBodySize = bytes("http.client.response.body.size", "Bytes read from response bodies")
	for p, inst := range phaseInstruments {
		buckets := networkBuckets
		if networkPhase(p) == phaseTTFB {
			buckets = durationBuckets
		}
		m.phases[p] = seconds(inst.name, inst.desc, buckets)
	}

	var err error
	m.activeRequests, err = meter.Int64UpDownCounter("http.client.active_requests",
		metric.WithDescription("Number of in-flight transport attempts"),
		metric.WithUnit("{request}"),
	)
	errs = append(errs, err)
	m.requestErrors, err = meter.Int64Counter("http.client.request.error",
		metric.WithDescription("Transport failures by error.type"),
		metric.WithUnit("{error}"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) recordRequestDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordPhase(ctx context.Context, p networkPhase, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.phases[p].Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// recordActive adjusts the in-flight gauge by delta.
func (m *metrics) recordActive(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, delta, metric.WithAttributes(attrs...))
}

func (m *metrics) recordError(ctx context.Context, kind ErrorKind, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	all := append(append(make([]attribute.KeyValue, 0, len(attrs)+1), attrs...),
		attribute.String("error.type", kind.String()))
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(all...))
}
