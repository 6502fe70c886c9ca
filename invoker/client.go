package invoker

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/handler"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/resilience"
)

// Client invokes endpoints. It is safe for concurrent use; handler chains
// and interceptor chains are built once per endpoint and reused.
type Client struct {
	cfg       *internalConfig
	transport httpclient.Transport
	resolver  *handler.Resolver
	retrier   *resilience.Retrier
	breaker   *resilience.Breaker
	limiter   httpclient.AsyncRequestInterceptor
	tracer    trace.Tracer
	metrics   *metrics

	ops sync.Map // endpoint key -> *operation
}

// operation is everything derived from one endpoint.
type operation struct {
	endpoint     endpoint.Endpoint
	chain        handler.Chain
	terminal     endpoint.Type
	interceptors *httpclient.InterceptorChain
	retry        resilience.RetryPolicy
	breaker      bool
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	cfg := newConfig(opts...)
	if cfg.err != nil {
		return nil, cfg.err
	}

	c := &Client{
		cfg:       cfg,
		transport: cfg.newTransport(),
		retrier:   resilience.NewRetrier(cfg.retry, cfg.resilienceOptions()...),
		tracer: cfg.tracerProvider.Tracer(
			scope,
			trace.WithInstrumentationVersion(Version),
		),
	}
	if cfg.rateLimit != nil {
		c.limiter = httpclient.RateLimitInterceptor(*cfg.rateLimit)
	}
	if cfg.breaker != nil {
		c.breaker = resilience.NewBreaker(*cfg.breaker, cfg.resilienceOptions()...)
	}

	var providers []handler.Provider
	if cfg.fallbacks != nil {
		providers = append(providers, resilience.FallbackProvider{Registry: cfg.fallbacks, Executor: cfg.executor})
	}
	providers = append(providers, cfg.providers...)
	providers = append(providers, handler.DefaultProviders(cfg.executor)...)
	c.resolver = handler.NewResolver(providers, handler.WithLogger(cfg.logger))

	m, err := newMetrics(cfg.meterProvider.Meter(scope), cfg.registerer)
	if err != nil {
		cfg.logger.Warn().Err(err).Msg("invoker: metrics disabled")
	}
	c.metrics = m
	return c, nil
}

// Version is the instrumentation version reported on spans.
const Version = "0.1.0"

// Invoke calls e with args and returns the value in e's declared shape.
// Asynchronous shapes return immediately; their failures are delivered
// through the returned container.
func (c *Client) Invoke(ctx context.Context, e endpoint.Endpoint, args ...any) (any, error) {
	op, err := c.operation(ctx, e)
	if err != nil {
		return nil, err
	}
	return op.chain.Handler.Handle(ctx, c.newCall(op, args), args)
}

// InvokeAsync calls e without blocking. The future completes with the value
// Invoke would have returned.
func (c *Client) InvokeAsync(ctx context.Context, e endpoint.Endpoint, args ...any) *async.Future[any] {
	op, err := c.operation(ctx, e)
	if err != nil {
		return async.Failed[any](err)
	}
	return handler.HandleAsync(ctx, op.chain.Handler, c.cfg.executor, c.newCall(op, args), args)
}

// Enqueue calls e and reports the outcome to exactly one of the callbacks.
// Either callback may be nil.
func (c *Client) Enqueue(
	ctx context.Context,
	e endpoint.Endpoint,
	onSuccess func(any),
	onFailure func(error),
	args ...any,
) {
	async.Notify(c.InvokeAsync(ctx, e, args...), onSuccess, onFailure)
}

// Chain returns the handler chain resolved for e.
func (c *Client) Chain(e endpoint.Endpoint) (handler.Chain, error) {
	op, err := c.operation(context.Background(), e)
	if err != nil {
		return handler.Chain{}, err
	}
	return op.chain, nil
}

// ResolverStats reports the handler resolution cache counters.
func (c *Client) ResolverStats() handler.CacheStats {
	return c.resolver.Stats()
}

// Transport returns the transport requests are sent through.
func (c *Client) Transport() httpclient.Transport {
	return c.transport
}

// Invoke calls e and asserts the result to T. A nil result yields the zero
// value of T.
func Invoke[T any](ctx context.Context, c *Client, e endpoint.Endpoint, args ...any) (T, error) {
	var zero T
	v, err := c.Invoke(ctx, e, args...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("invoker: %s returned %T, want %s", e.Name, v, reflect.TypeFor[T]())
	}
	return t, nil
}

// operation returns the memoised operation for e.
func (c *Client) operation(ctx context.Context, e endpoint.Endpoint) (*operation, error) {
	key := e.Key()
	if op, ok := c.ops.Load(key); ok {
		c.metrics.recordResolution(ctx, e.Name, true)
		return op.(*operation), nil
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	chain, err := c.resolver.Resolve(e)
	if err != nil {
		return nil, err
	}

	terminal := chain.Terminal.ReturnType()
	op := &operation{
		endpoint:     e,
		chain:        chain,
		terminal:     terminal,
		interceptors: c.interceptors(terminal),
		retry:        c.cfg.retry,
		breaker:      c.breaker != nil && (c.cfg.breakAllEndpoints || e.Options.CircuitBreaker),
	}
	if e.Options.Retry != nil {
		op.retry = op.retry.WithMaxAttempts(e.Options.Retry.MaxAttempts)
	}

	actual, loaded := c.ops.LoadOrStore(key, op)
	c.metrics.recordResolution(ctx, e.Name, loaded)
	return actual.(*operation), nil
}

// interceptors builds the per-endpoint chain. Accept lists the media types
// the terminal type can be decoded from.
func (c *Client) interceptors(terminal endpoint.Type) *httpclient.InterceptorChain {
	chain := httpclient.NewInterceptorChain()
	for _, h := range c.cfg.defaultHeaders {
		chain.AddRequestInterceptor(httpclient.DefaultHeaderInterceptor(h.Name, h.Value))
	}
	if t := decodeType(terminal); t != nil {
		chain.AddRequestInterceptor(httpclient.AcceptInterceptor(c.cfg.codecs.ReadableMediaTypes(t)...))
	}
	chain.AddRequestInterceptor(httpclient.ContentTypeInterceptor(c.cfg.contentType))
	chain.AddRequestInterceptor(httpclient.VersionInterceptor(c.cfg.versionHeader))
	if c.limiter != nil {
		chain.AddAsyncRequestInterceptor(c.limiter)
	}
	for _, stage := range c.cfg.stages {
		stage(chain)
	}
	if c.cfg.gzip {
		chain.AddRequestInterceptor(httpclient.GzipRequestInterceptor())
		chain.AddResponseInterceptor(httpclient.GzipResponseInterceptor())
	}
	chain.AddRequestInterceptor(httpclient.LoggingRequestInterceptor(c.cfg.logger))

	for _, i := range c.cfg.responseStages {
		chain.AddResponseInterceptor(i)
	}
	chain.AddResponseInterceptor(httpclient.LoggingResponseInterceptor(c.cfg.logger))
	return chain
}

// decodeType is the Go type the body of a terminal response decodes into,
// or nil when the body is discarded.
func decodeType(t endpoint.Type) reflect.Type {
	switch t.Kind() {
	case endpoint.KindVoid:
		return nil
	case endpoint.KindEntity:
		return decodeType(t.Elem())
	}
	return t.GoType()
}
