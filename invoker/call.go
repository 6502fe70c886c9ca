package invoker

import (
	"bytes"
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/result"
)

// newCall returns the unexecuted call for one invocation. Each execution
// rebuilds the request, so a call can be executed more than once.
//
// Transports that complete on their own goroutine are driven natively;
// breaker-guarded endpoints and plain transports run on the executor.
func (c *Client) newCall(op *operation, args []any) async.AsyncCall[any] {
	call := async.CallFunc[any](func(ctx context.Context) (any, error) {
		return c.execute(ctx, op, args)
	})
	at, ok := c.transport.(httpclient.AsyncTransport)
	if !ok || op.breaker {
		return async.NewAsyncCall[any](call, c.cfg.executor)
	}
	return async.NativeAsyncCall[any](call, func(ctx context.Context) *async.Future[any] {
		return c.executeAsync(ctx, op, args, at)
	})
}

// execute runs the attempts of one call under the retry policy.
func (c *Client) execute(ctx context.Context, op *operation, args []any) (any, error) {
	ctx, span := c.startSpan(ctx, op)
	start := time.Now()

	v, err := c.retrier.DoWith(ctx, op.retry, op.endpoint.Name, func(ctx context.Context) (any, error) {
		if op.breaker {
			return c.breaker.Execute(ctx, op.endpoint.Name, func(ctx context.Context) (any, error) {
				return c.attempt(ctx, op, args)
			})
		}
		return c.attempt(ctx, op, args)
	})

	c.endSpan(ctx, span, op, start, err)
	return v, err
}

// executeAsync is execute without blocking: the transport, the interceptors
// and the retry waits all complete on their own.
func (c *Client) executeAsync(
	ctx context.Context,
	op *operation,
	args []any,
	at httpclient.AsyncTransport,
) *async.Future[any] {
	ctx, span := c.startSpan(ctx, op)
	start := time.Now()

	f := c.retrier.DoAsync(ctx, op.retry, op.endpoint.Name, func(ctx context.Context) *async.Future[any] {
		return c.attemptAsync(ctx, op, args, at)
	})

	out := async.New[any]()
	out.OnCancel(func() { f.Cancel() })
	f.OnComplete(func(v any, err error) {
		err = async.Cause(err)
		c.endSpan(ctx, span, op, start, err)
		if err != nil {
			out.Fail(err)
			return
		}
		out.Complete(v)
	})
	return out
}

func (c *Client) attempt(ctx context.Context, op *operation, args []any) (any, error) {
	req, err := c.buildRequest(op.endpoint, args)
	if err != nil {
		return nil, err
	}
	req, err = op.interceptors.Apply(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := c.cfg.codecs.Write(httpclient.NewOutgoing(req))
	if err != nil {
		return nil, err
	}
	httpclient.LogOutgoing(c.cfg.logger, out)

	resp, err := c.transport.Execute(ctx, out)
	if err != nil {
		return nil, err
	}
	return c.receive(ctx, op, resp)
}

func (c *Client) attemptAsync(
	ctx context.Context,
	op *operation,
	args []any,
	at httpclient.AsyncTransport,
) *async.Future[any] {
	req, err := c.buildRequest(op.endpoint, args)
	if err != nil {
		return async.Failed[any](err)
	}
	return async.Then(op.interceptors.ApplyAsync(ctx, req), func(req httpclient.Request) *async.Future[any] {
		out, err := c.cfg.codecs.Write(httpclient.NewOutgoing(req))
		if err != nil {
			return async.Failed[any](err)
		}
		httpclient.LogOutgoing(c.cfg.logger, out)

		return async.Then(at.ExecuteAsync(ctx, out), func(resp *httpclient.Response) *async.Future[any] {
			v, err := c.receive(ctx, op, resp)
			if err != nil {
				return async.Failed[any](err)
			}
			return async.Completed(v)
		})
	})
}

// receive runs the response interceptors and converts the response into
// the terminal type.
func (c *Client) receive(ctx context.Context, op *operation, resp *httpclient.Response) (any, error) {
	intercepted, err := op.interceptors.ApplyResponse(ctx, resp)
	if err != nil {
		_ = resp.Close()
		return nil, err
	}
	return c.convert(op.terminal, intercepted)
}

// convert turns a response into a value of the terminal type t. Non-2xx
// responses fail with *httpclient.ResponseError unless the error response
// fallback recovers them.
func (c *Client) convert(t endpoint.Type, resp *httpclient.Response) (any, error) {
	if !resp.Status().IsSuccess() {
		if c.cfg.errorFallback != nil {
			if v, ok := c.cfg.errorFallback.Recover(resp, t); ok {
				_ = resp.Close()
				return v, nil
			}
		}
		return nil, httpclient.NewResponseError(resp)
	}

	switch t.Kind() {
	case endpoint.KindVoid:
		return nil, resp.Close()
	case endpoint.KindEntity:
		var body any
		if elem := t.Elem(); elem.Is(endpoint.KindVoid) {
			_ = resp.Close()
		} else {
			var err error
			if body, err = c.decode(elem, resp); err != nil {
				return nil, err
			}
		}
		return result.Entity{
			StatusCode: resp.StatusCode(),
			Reason:     resp.Status().Reason,
			Header:     resp.Headers().ToHTTP(),
			Body:       body,
		}, nil
	}
	return c.decode(t, resp)
}

// decode reads the body into t. An absent value (empty body, or JSON null)
// of a value type decodes to nil so that Optional shapes see it as empty.
func (c *Client) decode(t endpoint.Type, resp *httpclient.Response) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, httpclient.NewConnectivityError(err)
	}
	if t.Is(endpoint.KindValue) && absent(data, resp.Headers().Get(httpclient.HeaderContentType)) {
		return nil, nil
	}
	return c.cfg.codecs.Read(resp, t.GoType())
}

func absent(data []byte, contentType string) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return true
	}
	if contentType != "" && !strings.Contains(contentType, "json") {
		return false
	}
	return bytes.Equal(data, []byte("null"))
}

func (c *Client) startSpan(ctx context.Context, op *operation) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, op.endpoint.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("restify.endpoint", op.endpoint.Name),
			attribute.String("restify.return_type", op.endpoint.ReturnType.String()),
			attribute.String("http.request.method", op.endpoint.HTTPMethod()),
			attribute.String("url.template", op.endpoint.Path),
		),
	)
}

func (c *Client) endSpan(ctx context.Context, span trace.Span, op *operation, start time.Time, err error) {
	defer span.End()
	c.metrics.recordCall(ctx, op.endpoint.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.logger.Debug().Err(err).Str("endpoint", op.endpoint.Name).Msg("invocation failed")
	}
}
