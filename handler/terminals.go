package handler

import (
	"context"
	"reflect"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
)

type identityHandler struct {
	rt endpoint.Type
}

func (h identityHandler) ReturnType() endpoint.Type { return h.rt }

func (h identityHandler) Handle(ctx context.Context, call async.AsyncCall[any], _ []any) (any, error) {
	return call.Execute(ctx)
}

func (h identityHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], _ []any) *async.Future[any] {
	return call.ExecuteAsync(ctx)
}

// ListProvider creates the terminal for List shapes. A missing body yields
// an empty slice, never nil.
type ListProvider struct{}

// Supports implements Provider.
func (ListProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindList)
}

// Create implements Creator.
func (ListProvider) Create(e endpoint.Endpoint) (Handler, error) {
	return listHandler{rt: e.ReturnType}, nil
}

type listHandler struct {
	rt endpoint.Type
}

func (h listHandler) ReturnType() endpoint.Type { return h.rt }

func (h listHandler) Handle(ctx context.Context, call async.AsyncCall[any], _ []any) (any, error) {
	v, err := call.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return h.orEmpty(v), nil
}

func (h listHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], _ []any) *async.Future[any] {
	return async.Map(call.ExecuteAsync(ctx), func(v any) (any, error) {
		return h.orEmpty(v), nil
	})
}

func (h listHandler) orEmpty(v any) any {
	if isNil(v) {
		return reflect.MakeSlice(h.rt.GoType(), 0, 0).Interface()
	}
	return v
}

// VoidProvider creates the terminal for Void shapes: the call runs for its
// side effect and the result is always nil.
type VoidProvider struct{}

// Supports implements Provider.
func (VoidProvider) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindVoid)
}

// Create implements Creator.
func (VoidProvider) Create(e endpoint.Endpoint) (Handler, error) {
	return voidHandler{rt: e.ReturnType}, nil
}

type voidHandler struct {
	rt endpoint.Type
}

func (h voidHandler) ReturnType() endpoint.Type { return h.rt }

func (h voidHandler) Handle(ctx context.Context, call async.AsyncCall[any], _ []any) (any, error) {
	_, err := call.Execute(ctx)
	return nil, err
}

func (h voidHandler) HandleAsync(ctx context.Context, call async.AsyncCall[any], _ []any) *async.Future[any] {
	return async.Map(call.ExecuteAsync(ctx), func(any) (any, error) { return nil, nil })
}
