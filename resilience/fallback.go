package resilience

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/handler"
	"github.com/kroma-labs/restify-go/httpclient"
)

// FallbackFunc supplies a replacement of the declared shape. It receives the
// invocation arguments only.
type FallbackFunc func(ctx context.Context, args []any) (any, error)

// FallbackWithErrorFunc also receives the triggering failure. It may return
// an error, typically a wrapped one, instead of a value.
type FallbackWithErrorFunc func(ctx context.Context, args []any, err error) (any, error)

// Fallback is a registered substitute.
type Fallback struct {
	fn      FallbackFunc
	withErr FallbackWithErrorFunc
}

// Apply produces the substitute for a failure err.
func (f Fallback) Apply(ctx context.Context, args []any, err error) (any, error) {
	if f.withErr != nil {
		return f.withErr(ctx, args, err)
	}
	return f.fn(ctx, args)
}

// FallbackRegistry maps binding names and declared shapes to fallbacks.
// Lookup prefers the endpoint's binding name over its shape. It is safe for
// concurrent use; registration normally happens before the first call.
type FallbackRegistry struct {
	mu      sync.RWMutex
	byName  map[string]Fallback
	byShape map[string]Fallback
}

// NewFallbackRegistry creates an empty registry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{
		byName:  make(map[string]Fallback),
		byShape: make(map[string]Fallback),
	}
}

// Register binds fn to name (Endpoint.Options.Fallback).
func (r *FallbackRegistry) Register(name string, fn FallbackFunc) *FallbackRegistry {
	return r.put(r.byName, name, Fallback{fn: fn})
}

// RegisterWithError binds fn to name.
func (r *FallbackRegistry) RegisterWithError(name string, fn FallbackWithErrorFunc) *FallbackRegistry {
	return r.put(r.byName, name, Fallback{withErr: fn})
}

// RegisterForType binds fn to every endpoint declaring shape t.
func (r *FallbackRegistry) RegisterForType(t endpoint.Type, fn FallbackFunc) *FallbackRegistry {
	return r.put(r.byShape, t.String(), Fallback{fn: fn})
}

// RegisterForTypeWithError binds fn to every endpoint declaring shape t.
func (r *FallbackRegistry) RegisterForTypeWithError(t endpoint.Type, fn FallbackWithErrorFunc) *FallbackRegistry {
	return r.put(r.byShape, t.String(), Fallback{withErr: fn})
}

func (r *FallbackRegistry) put(m map[string]Fallback, key string, f Fallback) *FallbackRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[key] = f
	return r
}

// Lookup returns the fallback for e.
func (r *FallbackRegistry) Lookup(e endpoint.Endpoint) (Fallback, bool) {
	if r == nil {
		return Fallback{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name := e.Options.Fallback; name != "" {
		if f, ok := r.byName[name]; ok {
			return f, true
		}
	}
	f, ok := r.byShape[e.ReturnType.String()]
	return f, ok
}

// FallbackProvider is a handler adapter that substitutes a registered
// fallback when the call fails. Its inner type is the declared shape itself,
// so the rest of the chain resolves as if it were absent.
//
// Future shapes recover the failed future, Stream shapes resume with the
// substitute and Call shapes recover on execution. Cancellation is never
// substituted.
type FallbackProvider struct {
	Registry *FallbackRegistry

	// Executor runs inner handlers that cannot complete asynchronously on
	// their own. Nil uses a goroutine per call.
	Executor async.Executor
}

// Supports implements handler.Provider.
func (p FallbackProvider) Supports(e endpoint.Endpoint) bool {
	_, ok := p.Registry.Lookup(e)
	return ok
}

// InnerType implements handler.Adapter.
func (FallbackProvider) InnerType(e endpoint.Endpoint) endpoint.Type { return e.ReturnType }

// Adapt implements handler.Adapter.
func (p FallbackProvider) Adapt(e endpoint.Endpoint, inner handler.Handler) (handler.Handler, error) {
	f, ok := p.Registry.Lookup(e)
	if !ok {
		return inner, nil
	}
	return fallbackHandler{rt: e.ReturnType, inner: inner, fallback: f, exec: p.Executor}, nil
}

type fallbackHandler struct {
	rt       endpoint.Type
	inner    handler.Handler
	fallback Fallback
	exec     async.Executor
}

func (h fallbackHandler) ReturnType() endpoint.Type { return h.rt }

func (h fallbackHandler) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	v, err := h.inner.Handle(ctx, call, args)
	if err != nil {
		return h.substitute(ctx, args, err)
	}
	return h.wrap(ctx, v, args), nil
}

func (h fallbackHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any] {
	f := async.Recover(handler.HandleAsync(ctx, h.inner, h.exec, call, args),
		func(err error) *async.Future[any] {
			v, err := h.substitute(ctx, args, err)
			if err != nil {
				return async.Failed[any](err)
			}
			return async.Completed(v)
		})
	return async.Map(f, func(v any) (any, error) { return h.wrap(ctx, v, args), nil })
}

// wrap installs the fallback on shapes that fail after Handle returned.
func (h fallbackHandler) wrap(ctx context.Context, v any, args []any) any {
	switch h.rt.Kind() {
	case endpoint.KindFuture:
		f, ok := v.(*async.Future[any])
		if !ok {
			return v
		}
		return async.Recover(f, func(err error) *async.Future[any] {
			sub, err := h.substitute(ctx, args, err)
			if err != nil {
				return async.Failed[any](err)
			}
			if sf, ok := sub.(*async.Future[any]); ok {
				return sf
			}
			return async.Completed(sub)
		})
	case endpoint.KindStream:
		s, ok := v.(*async.Stream[any])
		if !ok {
			return v
		}
		return s.OnErrorResume(func(err error) *async.Stream[any] {
			sub, err := h.substitute(ctx, args, err)
			if err != nil {
				return async.NewStream(func(context.Context, func(any)) error { return err })
			}
			if ss, ok := sub.(*async.Stream[any]); ok {
				return ss
			}
			return async.Just(sub)
		})
	case endpoint.KindCall:
		c, ok := v.(async.AsyncCall[any])
		if !ok {
			return v
		}
		return async.NativeAsyncCall[any](
			async.CallFunc[any](func(ctx context.Context) (any, error) {
				v, err := c.Execute(ctx)
				if err != nil {
					return h.substitute(ctx, args, err)
				}
				return v, nil
			}),
			func(ctx context.Context) *async.Future[any] {
				return async.Recover(c.ExecuteAsync(ctx), func(err error) *async.Future[any] {
					v, err := h.substitute(ctx, args, err)
					if err != nil {
						return async.Failed[any](err)
					}
					return async.Completed(v)
				})
			},
		)
	}
	return v
}

func (h fallbackHandler) substitute(ctx context.Context, args []any, err error) (any, error) {
	err = async.Cause(err)
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	return h.fallback.Apply(ctx, args, err)
}

// ErrorResponseFallback turns a received non-2xx response into a value of
// the terminal type t. Returning false raises a ResponseError instead.
type ErrorResponseFallback interface {
	Recover(resp *httpclient.Response, t endpoint.Type) (any, bool)
}

// ErrorResponseFallbackFunc adapts a function to ErrorResponseFallback.
type ErrorResponseFallbackFunc func(resp *httpclient.Response, t endpoint.Type) (any, bool)

// Recover implements ErrorResponseFallback.
func (f ErrorResponseFallbackFunc) Recover(resp *httpclient.Response, t endpoint.Type) (any, bool) {
	return f(resp, t)
}

// EmptyOnNotFound maps 404 to the empty value of t: an empty slice for lists
// and nil otherwise, which Optional shapes present as empty.
func EmptyOnNotFound() ErrorResponseFallback {
	return ErrorResponseFallbackFunc(func(resp *httpclient.Response, t endpoint.Type) (any, bool) {
		if resp.StatusCode() != http.StatusNotFound {
			return nil, false
		}
		return emptyOf(t), true
	})
}

func emptyOf(t endpoint.Type) any {
	if t.Is(endpoint.KindList) {
		return reflect.MakeSlice(t.GoType(), 0, 0).Interface()
	}
	return nil
}
