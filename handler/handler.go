// Package handler turns a raw call result into the shape an endpoint
// declares. A Resolver matches the declared shape against an ordered list of
// providers and builds a chain of adapters ending in a terminal handler; the
// terminal's ReturnType is what the body is converted into.
//
// For a Future of an Optional of a User the chain is
//
//	future adapter -> optional adapter -> identity terminal (User)
//
// and the response body is decoded as a User.
package handler

import (
	"context"
	"reflect"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
)

// Handler produces a value of ReturnType from call. Handle blocks the calling
// goroutine only.
type Handler interface {
	ReturnType() endpoint.Type
	Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error)
}

// AsyncHandler is a Handler that can produce its value without blocking.
type AsyncHandler interface {
	Handler
	HandleAsync(ctx context.Context, call async.AsyncCall[any], args []any) *async.Future[any]
}

// HandleAsync runs h without blocking the caller: natively when h is an
// AsyncHandler, otherwise on exec (a goroutine per call when exec is nil).
func HandleAsync(
	ctx context.Context,
	h Handler,
	exec async.Executor,
	call async.AsyncCall[any],
	args []any,
) *async.Future[any] {
	if ah, ok := h.(AsyncHandler); ok {
		return ah.HandleAsync(ctx, call, args)
	}
	if exec == nil {
		exec = async.GoExecutor{}
	}
	return async.Go(ctx, exec, func(ctx context.Context) (any, error) {
		return h.Handle(ctx, call, args)
	})
}

// isNil reports nil interfaces and nil pointers, maps, slices and funcs.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
