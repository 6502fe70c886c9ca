// Package resilience holds the policies wrapped around an invocation: retry
// with backoff, circuit breaking and fallbacks.
//
// Policies are written against the closed error taxonomy of httpclient. A
// Classifier sees the (StatusCategory, ErrorKind) pair of a failure, never
// the concrete error:
//
//	retrier := resilience.NewRetrier(
//	    resilience.NewRetryPolicy(resilience.DefaultRetryConfig()),
//	    resilience.WithServiceName("user-service"),
//	)
//	v, err := retrier.Do(ctx, "getUser", func(ctx context.Context) (any, error) {
//	    return attempt(ctx) // rebuilds and sends the request
//	})
//
// Every attempt runs the whole thunk again, so requests are rebuilt and
// interceptors re-run. When attempts are exhausted the last outcome is
// returned unchanged.
//
// # Circuit breaking
//
// Breaker keeps one sony/gobreaker breaker per endpoint name, in memory or
// shared through Redis:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	breaker := resilience.NewBreaker(resilience.DistributedBreakerConfig(resilience.NewRedisStore(rdb)))
//
// # Fallbacks
//
// A FallbackRegistry maps a binding name or a declared shape to a substitute.
// FallbackProvider plugs the registry into handler resolution.
package resilience
