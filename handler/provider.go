package handler

import (
	"reflect"

	"github.com/kroma-labs/restify-go/endpoint"
)

// Provider contributes a handler for the endpoints it supports. Supports
// must be pure: it may only look at the endpoint.
//
// A provider is either a Creator, which builds a terminal handler, or an
// Adapter, which wraps the handler resolved for an inner shape.
type Provider interface {
	Supports(e endpoint.Endpoint) bool
}

// Creator builds a terminal handler directly.
type Creator interface {
	Provider
	Create(e endpoint.Endpoint) (Handler, error)
}

// Adapter delegates to the handler resolved for InnerType and wraps it.
type Adapter interface {
	Provider
	InnerType(e endpoint.Endpoint) endpoint.Type
	Adapt(e endpoint.Endpoint, inner Handler) (Handler, error)
}

// Identity of a provider is its concrete Go type. Two instances of the same
// provider type count as one during a resolution.
func identity(p Provider) reflect.Type {
	return reflect.TypeOf(p)
}

// Identity is the default terminal: it returns the converted body as is.
type Identity struct{}

// Supports implements Provider.
func (Identity) Supports(endpoint.Endpoint) bool { return true }

// Create implements Creator.
func (Identity) Create(e endpoint.Endpoint) (Handler, error) {
	return identityHandler{rt: e.ReturnType}, nil
}
