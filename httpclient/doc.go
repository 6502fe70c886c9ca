// Package httpclient is the request/response layer underneath the invoker:
// immutable requests and headers, the interceptor chain, the pluggable
// Transport abstraction and the net/http backed implementation with
// OpenTelemetry tracing and metrics.
//
// # Requests
//
// A Request is a value. Every With* method returns a copy, so interceptors
// can never mutate a request another goroutine holds:
//
//	req, _ := httpclient.ParseRequest("GET", "https://api.example.com/users/42")
//	req = req.WithHeader("Accept", "application/json").WithTimeout(2 * time.Second)
//
// # Interceptors
//
// Interceptors run strictly in registration order; each sees the request
// produced by the previous one. Default-injection interceptors only act when
// the header is absent, so caller-supplied values always win.
//
//	chain := httpclient.NewInterceptorChain().
//	    AddRequestInterceptor(httpclient.AcceptInterceptor()).
//	    AddRequestInterceptor(httpclient.ContentTypeInterceptor("")).
//	    AddRequestInterceptor(httpclient.VersionInterceptor("")).
//	    AddAsyncRequestInterceptor(httpclient.RateLimitInterceptor(httpclient.DefaultRateLimitConfig()))
//
// # Transports
//
// Transport executes one request and returns the response; a non-2xx status
// is a response, never an error. AsyncTransport additionally completes on a
// goroutine it owns. NetTransport implements both:
//
//	transport := httpclient.NewNetTransport(
//	    httpclient.WithServiceName("user-service"),
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	)
//
// MockTransport and ChaosTransport are provided for tests.
//
// # Errors
//
// Failures fall into a closed taxonomy. ClassifyError maps any error to a
// (StatusCategory, ErrorKind) pair:
//
//   - *ConnectivityError: no full response (refused, reset, DNS, timeout)
//   - *ResponseError: a non-2xx response; matches ErrNotFound, ErrServerError, ...
//   - *ConversionError: no codec, or the codec failed
//
// # Observability
//
// NetTransport creates a client span per request, propagates the trace
// context and records the OpenTelemetry HTTP client metrics
// (http.client.request.duration and friends). Network timing (DNS, connect,
// TLS, time to first byte) is on by default; see WithDisableNetworkTrace.
package httpclient
