package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/result"
)

// adapted is the common part of the built-in adapter handlers.
type adapted struct {
	rt    endpoint.Type
	inner Handler
	exec  async.Executor
}

func (a adapted) ReturnType() endpoint.Type { return a.rt }

func (a adapted) innerAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	return HandleAsync(ctx, a.inner, a.exec, call, args)
}

// elemOf is the InnerType of every adapter that unwraps one container level.
func elemOf(e endpoint.Endpoint) endpoint.Type {
	return e.ReturnType.Elem()
}

// CallProvider adapts Call shapes. The caller gets an unstarted
// async.AsyncCall and decides whether to run it blocking or not.
type CallProvider struct {
	// Executor runs inner handlers that cannot complete on their own.
	// Nil uses a goroutine per call.
	Executor async.Executor
}

// Supports implements Provider.
func (CallProvider) Supports(e endpoint.Endpoint) bool { return e.ReturnType.Is(endpoint.KindCall) }

// InnerType implements Adapter.
func (CallProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return elemOf(e) }

// Adapt implements Adapter.
func (p CallProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return callHandler{adapted{rt: e.ReturnType, inner: inner, exec: p.Executor}}, nil
}

type callHandler struct{ adapted }

func (h callHandler) Handle(_ context.Context, call async.AsyncCall[any], args []any) (any, error) {
	return async.NativeAsyncCall[any](
		async.CallFunc[any](func(ctx context.Context) (any, error) {
			return h.inner.Handle(ctx, call, args)
		}),
		func(ctx context.Context) *async.Future[any] {
			return h.innerAsync(ctx, call, args)
		},
	), nil
}

func (h callHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	v, _ := h.Handle(ctx, call, args)
	return async.Completed(v)
}

// FutureProvider adapts Future shapes. The call starts immediately and the
// caller receives an *async.Future[any].
type FutureProvider struct {
	Executor async.Executor
}

// Supports implements Provider.
func (FutureProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindFuture)
}

// InnerType implements Adapter.
func (FutureProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return elemOf(e) }

// Adapt implements Adapter.
func (p FutureProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return futureHandler{adapted{rt: e.ReturnType, inner: inner, exec: p.Executor}}, nil
}

type futureHandler struct{ adapted }

func (h futureHandler) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	return h.innerAsync(ctx, call, args), nil
}

func (h futureHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	return async.Completed[any](h.innerAsync(ctx, call, args))
}

// StreamProvider adapts Stream shapes. The returned *async.Stream[any] is
// cold: every subscription performs the call again and emits its value once.
type StreamProvider struct {
	Executor async.Executor
}

// Supports implements Provider.
func (StreamProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindStream)
}

// InnerType implements Adapter.
func (StreamProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return elemOf(e) }

// Adapt implements Adapter.
func (p StreamProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return streamHandler{adapted{rt: e.ReturnType, inner: inner, exec: p.Executor}}, nil
}

type streamHandler struct{ adapted }

func (h streamHandler) Handle(_ context.Context, call async.AsyncCall[any], args []any) (any, error) {
	return async.FromFuture(func(ctx context.Context) *async.Future[any] {
		return h.innerAsync(ctx, call, args)
	}), nil
}

func (h streamHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	v, _ := h.Handle(ctx, call, args)
	return async.Completed(v)
}

// EitherProvider adapts Either shapes: a failed call becomes the left
// branch holding the root cause, a successful one the right branch.
type EitherProvider struct{}

// Supports implements Provider.
func (EitherProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindEither)
}

// InnerType implements Adapter.
func (EitherProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return elemOf(e) }

// Adapt implements Adapter.
func (EitherProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return eitherHandler{adapted{rt: e.ReturnType, inner: inner}}, nil
}

type eitherHandler struct{ adapted }

func (h eitherHandler) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	v, err := h.inner.Handle(ctx, call, args)
	return toEither(v, err), nil
}

func (h eitherHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	f := async.New[any]()
	inner := h.innerAsync(ctx, call, args)
	f.OnCancel(func() { inner.Cancel() })
	inner.OnComplete(func(v any, err error) {
		f.Complete(toEither(v, err))
	})
	return f
}

func toEither(v any, err error) result.Either[error, any] {
	if err != nil {
		return result.Left[error, any](async.Cause(err))
	}
	return result.Right[error](v)
}

// OptionalProvider adapts Optional shapes. A nil inner value, as produced
// for a null or empty body, becomes the empty optional.
type OptionalProvider struct{}

// Supports implements Provider.
func (OptionalProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindOptional)
}

// InnerType implements Adapter.
func (OptionalProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return elemOf(e) }

// Adapt implements Adapter.
func (OptionalProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return optionalHandler{adapted{rt: e.ReturnType, inner: inner}}, nil
}

type optionalHandler struct{ adapted }

func (h optionalHandler) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	v, err := h.inner.Handle(ctx, call, args)
	if err != nil {
		return nil, err
	}
	return toOptional(v), nil
}

func (h optionalHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	return async.Map(h.innerAsync(ctx, call, args), func(v any) (any, error) {
		return toOptional(v), nil
	})
}

func toOptional(v any) result.Optional[any] {
	if isNil(v) {
		return result.None[any]()
	}
	return result.Some(v)
}

// HeadersProvider adapts Headers shapes: only the response headers are
// returned, as an http.Header.
type HeadersProvider struct{}

// Supports implements Provider.
func (HeadersProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindHeaders)
}

// InnerType implements Adapter.
func (HeadersProvider) InnerType(endpoint.Endpoint) endpoint.Type {
	return endpoint.EntityOf(endpoint.Void())
}

// Adapt implements Adapter.
func (HeadersProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return entityHandler{
		adapted: adapted{rt: e.ReturnType, inner: inner},
		project: func(en result.Entity) any {
			if en.Header == nil {
				return http.Header{}
			}
			return en.Header
		},
	}, nil
}

// StatusProvider adapts Status shapes: only the response status is returned,
// as an httpclient.Status.
type StatusProvider struct{}

// Supports implements Provider.
func (StatusProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindStatus)
}

// InnerType implements Adapter.
func (StatusProvider) InnerType(endpoint.Endpoint) endpoint.Type {
	return endpoint.EntityOf(endpoint.Void())
}

// Adapt implements Adapter.
func (StatusProvider) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return entityHandler{
		adapted: adapted{rt: e.ReturnType, inner: inner},
		project: func(en result.Entity) any {
			return httpclient.Status{Code: en.StatusCode, Reason: en.Reason}
		},
	}, nil
}

type entityHandler struct {
	adapted
	project func(result.Entity) any
}

func (h entityHandler) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	v, err := h.inner.Handle(ctx, call, args)
	if err != nil {
		return nil, err
	}
	return h.apply(v)
}

func (h entityHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	return async.Map(h.innerAsync(ctx, call, args), h.apply)
}

func (h entityHandler) apply(v any) (any, error) {
	en, ok := v.(result.Entity)
	if !ok {
		return nil, fmt.Errorf("handler: %s expects an entity, got %T", h.rt, v)
	}
	return h.project(en), nil
}

// DefaultProviders returns the built-in providers in resolution order.
// Adapters that must force asynchrony use exec; nil means a goroutine per
// call.
func DefaultProviders(exec async.Executor) []Provider {
	return []Provider{
		CallProvider{Executor: exec},
		FutureProvider{Executor: exec},
		StreamProvider{Executor: exec},
		EitherProvider{},
		OptionalProvider{},
		HeadersProvider{},
		StatusProvider{},
		ListProvider{},
		VoidProvider{},
	}
}
