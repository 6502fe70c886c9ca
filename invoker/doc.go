// Package invoker is the client facade. It turns an endpoint description and
// call arguments into a request, sends it through the interceptor chain,
// codec registry, transport and resilience policies, and hands the raw
// result to the handler chain resolved for the endpoint's declared shape.
//
//	client, err := invoker.New(
//	    invoker.WithBaseURL("https://api.example.com"),
//	    invoker.WithServiceName("user-service"),
//	    invoker.WithRetryConfig(resilience.DefaultRetryConfig()),
//	)
//
//	getUser := endpoint.Endpoint{
//	    Name:       "GetUser",
//	    Path:       "/users/{id}",
//	    ReturnType: endpoint.FutureOf(endpoint.OptionalOf(endpoint.Of[User]())),
//	    Parameters: []endpoint.Parameter{endpoint.PathParam("id", 0)},
//	}
//	v, err := client.Invoke(ctx, getUser, 42)
//	f := v.(*async.Future[any]) // resolves to result.Optional[any]
//
// Container shapes are delivered untyped: Optional as result.Optional[any],
// Either as result.Either[error, any], Future as *async.Future[any], Stream
// as *async.Stream[any] and Call as async.AsyncCall[any]. The values inside
// them have the concrete decoded type.
//
// # Request pipeline
//
// Each attempt rebuilds the request from the endpoint and runs the
// interceptors in this order: default headers, Accept, Content-Type, version
// header, caller interceptors, gzip, logging. The codec for the body is
// selected after the chain, so it sees the final Content-Type.
//
// Retries wrap the whole attempt. The circuit breaker, when enabled for an
// endpoint, wraps each attempt inside the retry loop.
package invoker
