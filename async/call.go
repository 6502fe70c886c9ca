package async

import (
	"context"
	"sync"
)

// Call is a unit of work bound to one fully built request. Execute runs it on
// the caller's goroutine.
type Call[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// CallFunc adapts a function to Call.
type CallFunc[T any] func(ctx context.Context) (T, error)

// Execute implements Call.
func (f CallFunc[T]) Execute(ctx context.Context) (T, error) { return f(ctx) }

// AsyncCall is a Call that can also be started without blocking.
type AsyncCall[T any] interface {
	Call[T]

	// ExecuteAsync starts the call and returns its future.
	ExecuteAsync(ctx context.Context) *Future[T]

	// Enqueue starts the call and invokes exactly one of onSuccess or
	// onFailure exactly once. Errors are unwrapped with Cause.
	Enqueue(ctx context.Context, onSuccess func(T), onFailure func(error))
}

type asyncCall[T any] struct {
	call  Call[T]
	start func(ctx context.Context) *Future[T]
}

// NewAsyncCall runs call on exec when started asynchronously.
func NewAsyncCall[T any](call Call[T], exec Executor) AsyncCall[T] {
	return &asyncCall[T]{
		call: call,
		start: func(ctx context.Context) *Future[T] {
			return Go(ctx, exec, call.Execute)
		},
	}
}

// NativeAsyncCall uses start for asynchronous execution, for work that is
// already non-blocking (a transport with its own event loop). No executor
// slot is consumed.
func NativeAsyncCall[T any](call Call[T], start func(ctx context.Context) *Future[T]) AsyncCall[T] {
	return &asyncCall[T]{call: call, start: start}
}

// Value returns an AsyncCall that always produces v. Adapters use it to feed
// an already converted value into an inner handler.
func Value[T any](v T) AsyncCall[T] {
	call := CallFunc[T](func(context.Context) (T, error) { return v, nil })
	return &asyncCall[T]{
		call:  call,
		start: func(context.Context) *Future[T] { return Completed(v) },
	}
}

// Error returns an AsyncCall that always fails with err.
func Error[T any](err error) AsyncCall[T] {
	call := CallFunc[T](func(context.Context) (T, error) { return *new(T), err })
	return &asyncCall[T]{
		call:  call,
		start: func(context.Context) *Future[T] { return Failed[T](err) },
	}
}

func (c *asyncCall[T]) Execute(ctx context.Context) (T, error) {
	return c.call.Execute(ctx)
}

func (c *asyncCall[T]) ExecuteAsync(ctx context.Context) (f *Future[T]) {
	defer func() {
		if r := recover(); r != nil {
			f = Failed[T](recovered(r))
		}
	}()
	f = c.start(ctx)
	if f == nil {
		f = Completed(*new(T))
	}
	return f
}

func (c *asyncCall[T]) Enqueue(ctx context.Context, onSuccess func(T), onFailure func(error)) {
	Notify(c.ExecuteAsync(ctx), onSuccess, onFailure)
}

// Notify reports the outcome of f to exactly one of the callbacks, once. The
// failure is unwrapped with Cause. Nil callbacks are skipped.
func Notify[T any](f *Future[T], onSuccess func(T), onFailure func(error)) {
	var once sync.Once
	f.OnComplete(func(v T, err error) {
		once.Do(func() { deliver(v, err, onSuccess, onFailure) })
	})
}

// deliver calls the matching callback.
func deliver[T any](v T, err error, onSuccess func(T), onFailure func(error)) {
	if err != nil {
		if onFailure != nil {
			onFailure(err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(v)
	}
}
