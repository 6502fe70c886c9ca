// Package endpoint describes remote operations: the HTTP method and path, the
// header templates and parameter bindings used to build a request, and the
// declared return shape the caller expects.
//
// Endpoints are produced once by a front end (generated code or a hand-written
// table) and never mutated afterwards. The only derivation is WithReturnType,
// which the handler resolution engine uses to re-tag an endpoint while it
// walks nested return shapes.
//
// Example:
//
//	getUser := endpoint.Endpoint{
//	    Name:       "GetUser",
//	    Method:     http.MethodGet,
//	    Path:       "/users/{id}",
//	    ReturnType: endpoint.FutureOf(endpoint.OptionalOf(endpoint.Of[User]())),
//	    Parameters: []endpoint.Parameter{endpoint.PathParam("id", 0)},
//	}
package endpoint

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"
)

// ParameterKind tells how an argument is bound into the request.
type ParameterKind int

const (
	// ParamPath replaces a {name} placeholder in the path.
	ParamPath ParameterKind = iota

	// ParamQuery adds a query parameter.
	ParamQuery

	// ParamHeader adds a header value.
	ParamHeader

	// ParamBody becomes the request body.
	ParamBody
)

// String returns the parameter kind name.
func (k ParameterKind) String() string {
	switch k {
	case ParamPath:
		return "path"
	case ParamQuery:
		return "query"
	case ParamHeader:
		return "header"
	case ParamBody:
		return "body"
	default:
		return "unknown"
	}
}

// Parameter binds the argument at Index to a part of the request.
type Parameter struct {
	// Name is the placeholder, query key or header name.
	Name string

	// Kind is where the argument goes.
	Kind ParameterKind

	// Index is the position of the argument in the invocation.
	Index int

	// Type is the static type of the argument. Only body parameters need it;
	// when nil the dynamic type of the argument is used.
	Type reflect.Type
}

// PathParam binds argument index to the {name} path placeholder.
func PathParam(name string, index int) Parameter {
	return Parameter{Name: name, Kind: ParamPath, Index: index}
}

// QueryParam binds argument index to the query parameter name.
func QueryParam(name string, index int) Parameter {
	return Parameter{Name: name, Kind: ParamQuery, Index: index}
}

// HeaderParam binds argument index to the header name.
func HeaderParam(name string, index int) Parameter {
	return Parameter{Name: name, Kind: ParamHeader, Index: index}
}

// BodyParam binds argument index to the request body with static type T.
func BodyParam[T any](index int) Parameter {
	return Parameter{Kind: ParamBody, Index: index, Type: reflect.TypeFor[T]()}
}

// Header is a header template. Value may contain {name} placeholders that are
// expanded from path, query or header parameters with the same name.
type Header struct {
	Name  string
	Value string
}

// RetryOverride replaces the client retry policy for one endpoint.
type RetryOverride struct {
	// MaxAttempts counts the first attempt. 1 disables retries.
	MaxAttempts uint
}

// Options are per-endpoint settings attached to every request built from it.
type Options struct {
	// Timeout bounds a single attempt. Zero uses the transport default.
	Timeout time.Duration

	// Version is sent in the version header when set.
	Version string

	// Retry overrides the client retry policy when non-nil.
	Retry *RetryOverride

	// Fallback names a registered fallback. Empty means lookup by return type.
	Fallback string

	// CircuitBreaker routes calls through the client circuit breaker.
	CircuitBreaker bool
}

// Endpoint is the immutable description of one remote operation.
type Endpoint struct {
	// Name identifies the operation in logs, spans, metrics and breaker names.
	Name string

	// Method is the HTTP method. Empty means GET.
	Method string

	// Path is the request path or absolute URI with {name} placeholders.
	Path string

	// ReturnType is the declared shape of the result.
	ReturnType Type

	// Headers are header templates added to every request.
	Headers []Header

	// Parameters bind invocation arguments.
	Parameters []Parameter

	// Options carry per-request metadata.
	Options Options
}

// WithReturnType returns a copy of e declaring t as its return shape.
func (e Endpoint) WithReturnType(t Type) Endpoint {
	e.ReturnType = t
	return e
}

// HTTPMethod returns the method, defaulting to GET.
func (e Endpoint) HTTPMethod() string {
	if e.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(e.Method)
}

// Key identifies the endpoint for memoisation. Two endpoints with the same key
// resolve to the same handler chain.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s %s %s -> %s [%s]",
		e.Name, e.HTTPMethod(), e.Path, e.ReturnType, e.Options.Fallback)
}

// BodyParameter returns the body binding, if any.
func (e Endpoint) BodyParameter() (Parameter, bool) {
	for _, p := range e.Parameters {
		if p.Kind == ParamBody {
			return p, true
		}
	}
	return Parameter{}, false
}

// Validate checks that parameter bindings are consistent with the path.
func (e Endpoint) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("endpoint %q: path is required", e.Name)
	}
	bodies := 0
	for _, p := range e.Parameters {
		if p.Index < 0 {
			return fmt.Errorf("endpoint %q: parameter %q has negative index", e.Name, p.Name)
		}
		switch p.Kind {
		case ParamBody:
			bodies++
		case ParamPath:
			if !strings.Contains(e.Path, "{"+p.Name+"}") {
				return fmt.Errorf("endpoint %q: path has no placeholder {%s}", e.Name, p.Name)
			}
		case ParamQuery, ParamHeader:
			if p.Name == "" {
				return fmt.Errorf("endpoint %q: %s parameter needs a name", e.Name, p.Kind)
			}
		}
	}
	if bodies > 1 {
		return fmt.Errorf("endpoint %q: at most one body parameter allowed, got %d", e.Name, bodies)
	}
	return nil
}
