package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/restify-go/async"
)

// Transport sends one request and returns the response. A received non-2xx
// status is a response, not an error. Failures before a full response are
// returned as *ConnectivityError.
//
// Execute blocks the calling goroutine only.
type Transport interface {
	Execute(ctx context.Context, out *Outgoing) (*Response, error)
}

// AsyncTransport is a Transport that can also complete on a goroutine it
// owns, without the caller supplying an executor. Cancelling the returned
// future cancels the in-flight request.
type AsyncTransport interface {
	Transport
	ExecuteAsync(ctx context.Context, out *Outgoing) *async.Future[*Response]
}

// Compile-time interface checks.
var (
	_ AsyncTransport    = (*NetTransport)(nil)
	_ http.RoundTripper = (*otelRoundTripper)(nil)
)

// NetTransport is the net/http backed transport with OpenTelemetry tracing
// and metrics.
//
// Quick start:
//
//	transport := httpclient.NewNetTransport(
//	    httpclient.WithServiceName("user-service"),
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	)
type NetTransport struct {
	client *http.Client
	cfg    *internalConfig
}

// NewNetTransport creates a transport from opts.
func NewNetTransport(opts ...Option) *NetTransport {
	cfg := newConfig(opts...)
	return &NetTransport{
		cfg: cfg,
		client: &http.Client{
			Transport: &otelRoundTripper{base: cfg.buildTransport(), cfg: cfg},
			// Redirects are followed; the per-attempt timeout lives on the context.
		},
	}
}

// Execute implements Transport. The request timeout metadata, or the Config
// timeout when absent, bounds the call including body consumption.
func (t *NetTransport) Execute(ctx context.Context, out *Outgoing) (*Response, error) {
	req := out.Request()

	ctx, cancel := t.withTimeout(ctx, req.Metadata().Timeout)
	httpReq, err := newHTTPRequest(ctx, out)
	if err != nil {
		cancel()
		return nil, err
	}

	t.cfg.Logger.Debug().
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.Redacted()).
		Msg("transport: sending request")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", req, context.Canceled)
		}
		return nil, NewConnectivityError(err)
	}

	body := &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return NewResponse(req, statusOf(resp), HeadersFromHTTP(resp.Header), body), nil
}

// ExecuteAsync implements AsyncTransport. The call runs on a transport-owned
// goroutine.
func (t *NetTransport) ExecuteAsync(ctx context.Context, out *Outgoing) *async.Future[*Response] {
	f := async.New[*Response]()
	ctx, cancel := context.WithCancel(ctx)
	f.OnCancel(cancel)

	go func() {
		resp, err := t.Execute(ctx, out)
		if err != nil {
			cancel()
			f.Fail(err)
			return
		}
		resp.body = &cancelOnClose{ReadCloser: resp.body, cancel: cancel}
		if !f.Complete(resp) {
			_ = resp.Close()
		}
	}()
	return f
}

// HTTPClient returns the underlying client, for callers that need raw access
// with the same instrumentation.
func (t *NetTransport) HTTPClient() *http.Client { return t.client }

func (t *NetTransport) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = t.cfg.httpConfig.Timeout
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func newHTTPRequest(ctx context.Context, out *Outgoing) (*http.Request, error) {
	req := out.Request()
	data, err := out.Bytes()
	if err != nil {
		return nil, &ConversionError{Op: "write", MediaType: req.Header("Content-Type"), Err: err}
	}

	var body io.Reader
	if len(data) > 0 {
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL().String(), body)
	if err != nil {
		return nil, fmt.Errorf("build http request: %w", err)
	}
	httpReq.Header = req.Headers().ToHTTP()
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
	}
	return httpReq, nil
}

func statusOf(resp *http.Response) Status {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	return Status{Code: resp.StatusCode, Reason: reason}
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}

// otelRoundTripper wraps an http.RoundTripper with OpenTelemetry instrumentation.
type otelRoundTripper struct {
	base http.RoundTripper
	cfg  *internalConfig
}

// RoundTrip implements http.RoundTripper with tracing and metrics. The span
// ends when the response body is closed.
func (t *otelRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := t.cfg.Tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)

	req = req.Clone(ctx)
	t.cfg.Propagators.Inject(ctx, propagation.HeaderCarrier(req.Header))

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActive(ctx, 1, baseAttrs)
	defer t.cfg.Metrics.recordActive(ctx, -1, baseAttrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, baseAttrs)
	}

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = &networkTrace{}
		req = req.WithContext(httptrace.WithClientTrace(ctx, nt.clientTrace()))
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if nt != nil {
		nt.record(ctx, span, t.cfg.Metrics, baseAttrs)
	}

	if err != nil {
		_, kind := ClassifyError(NewConnectivityError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.type", kind.String()))
		t.cfg.Metrics.recordError(ctx, kind, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, nil, kind))
		span.End()
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	kind := KindOfStatus(resp.StatusCode)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", kind.String()))
	}
	t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, resp, kind))

	resp.Body = newSpanBody(span, resp.Body, func(n int64) {
		t.cfg.Metrics.recordResponseBodySize(ctx, n, baseAttrs)
	})
	return resp, nil
}

func (t *otelRoundTripper) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(),
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL.Redacted()),
		attribute.String("url.scheme", req.URL.Scheme),
	)
	return append(attrs, serverAttributes(req)...)
}

func (t *otelRoundTripper) metricsAttributes(req *http.Request, resp *http.Response, kind ErrorKind) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))
	attrs = append(attrs, serverAttributes(req)...)
	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if kind != KindNone {
		attrs = append(attrs, attribute.String("error.type", kind.String()))
	}
	return attrs
}

func serverAttributes(req *http.Request) []attribute.KeyValue {
	if req.URL == nil {
		return nil
	}
	var attrs []attribute.KeyValue
	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	if port := req.URL.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
	} else {
		switch req.URL.Scheme {
		case "http":
			attrs = append(attrs, attribute.Int("server.port", 80))
		case "https":
			attrs = append(attrs, attribute.Int("server.port", 443))
		}
	}
	return attrs
}

// Unwrap returns the instrumented round tripper.
func (t *otelRoundTripper) Unwrap() http.RoundTripper { return t.base }
