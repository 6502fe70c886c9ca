package httpclient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kroma-labs/restify-go/async"
)

// RequestInterceptor transforms a request before it is sent. It returns the
// request to pass on; returning an error stops the chain and fails the call.
//
// Common use cases:
//   - Adding authentication headers (Bearer tokens, API keys)
//   - Injecting correlation IDs
//   - Default headers (Accept, Content-Type, version)
type RequestInterceptor func(ctx context.Context, req Request) (Request, error)

// AsyncRequestInterceptor transforms a request without blocking, e.g. when a
// token has to be fetched first. The next interceptor runs once the returned
// future resolves.
type AsyncRequestInterceptor func(ctx context.Context, req Request) *async.Future[Request]

// ResponseInterceptor inspects or replaces a response after receipt.
//
// Common use cases:
//   - Response logging
//   - Transparent decompression
//   - Custom error handling
type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// stage is one request step, sync or async.
type stage struct {
	sync  RequestInterceptor
	async AsyncRequestInterceptor
}

// InterceptorChain runs request and response interceptors strictly in
// registration order. Interceptor i+1 sees the request produced by
// interceptor i. A chain is not safe for concurrent modification; build it
// once and then share it.
type InterceptorChain struct {
	stages               []stage
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates an empty interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequestInterceptor appends a synchronous request interceptor.
func (c *InterceptorChain) AddRequestInterceptor(i RequestInterceptor) *InterceptorChain {
	c.stages = append(c.stages, stage{sync: i})
	return c
}

// AddAsyncRequestInterceptor appends an asynchronous request interceptor.
func (c *InterceptorChain) AddAsyncRequestInterceptor(i AsyncRequestInterceptor) *InterceptorChain {
	c.stages = append(c.stages, stage{async: i})
	return c
}

// AddResponseInterceptor appends a response interceptor.
func (c *InterceptorChain) AddResponseInterceptor(i ResponseInterceptor) *InterceptorChain {
	c.responseInterceptors = append(c.responseInterceptors, i)
	return c
}

// Len returns the number of request stages.
func (c *InterceptorChain) Len() int { return len(c.stages) }

// Apply runs every request interceptor in order, waiting on async stages.
func (c *InterceptorChain) Apply(ctx context.Context, req Request) (Request, error) {
	var err error
	for _, s := range c.stages {
		if s.sync != nil {
			req, err = s.sync(ctx, req)
		} else {
			req, err = s.async(ctx, req).Get(ctx)
		}
		if err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// ApplyAsync composes the stages into one future. Sync stages run inline on
// whichever goroutine completed the previous stage.
func (c *InterceptorChain) ApplyAsync(ctx context.Context, req Request) *async.Future[Request] {
	f := async.Completed(req)
	for _, s := range c.stages {
		s := s
		f = async.Then(f, func(r Request) *async.Future[Request] {
			if s.sync != nil {
				next, err := s.sync(ctx, r)
				if err != nil {
					return async.Failed[Request](err)
				}
				return async.Completed(next)
			}
			return s.async(ctx, r)
		})
	}
	return f
}

// ApplyResponse runs every response interceptor in order.
func (c *InterceptorChain) ApplyResponse(ctx context.Context, resp *Response) (*Response, error) {
	var err error
	for _, i := range c.responseInterceptors {
		resp, err = i(ctx, resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// =============================================================================
// Default injection: only act when the header is absent.
// =============================================================================

// Default header names and values.
const (
	HeaderAccept          = "Accept"
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	HeaderAcceptEncoding  = "Accept-Encoding"

	// DefaultVersionHeader carries Metadata.Version.
	DefaultVersionHeader = "X-API-Version"

	// DefaultContentType is injected for requests with a body and no
	// Content-Type.
	DefaultContentType = "application/json"
)

// DefaultHeaderInterceptor adds name: value unless the request already has name.
func DefaultHeaderInterceptor(name, value string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		if req.Headers().Has(name) {
			return req, nil
		}
		return req.WithHeader(name, value), nil
	}
}

// AcceptInterceptor sets Accept to the given media types when absent.
func AcceptInterceptor(mediaTypes ...string) RequestInterceptor {
	if len(mediaTypes) == 0 {
		mediaTypes = []string{DefaultContentType}
	}
	return DefaultHeaderInterceptor(HeaderAccept, strings.Join(mediaTypes, ", "))
}

// ContentTypeInterceptor sets Content-Type on requests that carry a body and
// have none. It must run before the codec is selected.
func ContentTypeInterceptor(contentType string) RequestInterceptor {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return func(_ context.Context, req Request) (Request, error) {
		if !req.HasBody() || req.Headers().Has(HeaderContentType) {
			return req, nil
		}
		return req.WithHeader(HeaderContentType, contentType), nil
	}
}

// VersionInterceptor copies Metadata.Version into header when the request has
// a version and no such header. An empty header uses DefaultVersionHeader.
func VersionInterceptor(header string) RequestInterceptor {
	if header == "" {
		header = DefaultVersionHeader
	}
	return func(_ context.Context, req Request) (Request, error) {
		version := req.Metadata().Version
		if version == "" || req.Headers().Has(header) {
			return req, nil
		}
		return req.WithHeader(header, version), nil
	}
}

// =============================================================================
// Common interceptor helpers
// =============================================================================

// AuthBearerInterceptor creates an interceptor that adds a Bearer token.
func AuthBearerInterceptor(token string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		return req.ReplaceHeader("Authorization", "Bearer "+token), nil
	}
}

// AuthBearerFuncInterceptor creates an interceptor that adds a Bearer token
// from a function (useful for dynamic/refreshable tokens).
func AuthBearerFuncInterceptor(tokenFunc func(ctx context.Context) (string, error)) RequestInterceptor {
	return func(ctx context.Context, req Request) (Request, error) {
		token, err := tokenFunc(ctx)
		if err != nil {
			return Request{}, err
		}
		return req.ReplaceHeader("Authorization", "Bearer "+token), nil
	}
}

// AsyncAuthBearerInterceptor fetches the token through a future, for token
// sources that are themselves remote.
func AsyncAuthBearerInterceptor(tokenFunc func(ctx context.Context) *async.Future[string]) AsyncRequestInterceptor {
	return func(ctx context.Context, req Request) *async.Future[Request] {
		return async.Map(tokenFunc(ctx), func(token string) (Request, error) {
			return req.ReplaceHeader("Authorization", "Bearer "+token), nil
		})
	}
}

// APIKeyInterceptor creates an interceptor that adds an API key header.
func APIKeyInterceptor(headerName, apiKey string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		return req.ReplaceHeader(headerName, apiKey), nil
	}
}

// CorrelationIDInterceptor adds a correlation ID when the request has none.
// A nil idFunc generates random UUIDs.
func CorrelationIDInterceptor(headerName string, idFunc func() string) RequestInterceptor {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return func(_ context.Context, req Request) (Request, error) {
		if req.Headers().Has(headerName) {
			return req, nil
		}
		return req.WithHeader(headerName, idFunc()), nil
	}
}

// UserAgentInterceptor creates an interceptor that sets the User-Agent header.
func UserAgentInterceptor(userAgent string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		return req.ReplaceHeader("User-Agent", userAgent), nil
	}
}
