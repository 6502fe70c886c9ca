// Package async decouples starting a call from delivering its result.
//
// A Future resolves exactly once, with a value or a failure. Futures compose
// with Then, Map and Recover; failures crossing those stages are wrapped in a
// CompositionError and unwrapped again with Cause before they reach user
// code, so callers only ever observe the original failure.
//
// AsyncCall runs a Call on an Executor (or on a transport-owned goroutine for
// natively asynchronous transports) and notifies through a Future or through
// a pair of callbacks, exactly one of which fires, exactly once.
package async

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Future is a single-assignment result delivered asynchronously.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	callbacks []func(T, error)
	cancel    func()
	canceled  bool

	value T
	err   error
}

// New returns an unresolved future. Resolve it with Complete or Fail.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already resolved with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v)
	return f
}

// Failed returns a future already resolved with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Complete resolves the future with v. It returns false if the future was
// already resolved, in which case v is dropped.
func (f *Future[T]) Complete(v T) bool {
	return f.resolve(v, nil, false)
}

// Fail resolves the future with err. It returns false if the future was
// already resolved.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.resolve(zero, err, false)
}

// resolve publishes the outcome and runs the registered callbacks. When
// byCancel wins, the OnCancel hooks are taken under the same lock that closes
// done, so a hook is either run here or refused by OnCancel.
func (f *Future[T]) resolve(v T, err error, byCancel bool) bool {
	resolved := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = v
		f.err = err
		callbacks := f.callbacks
		f.callbacks = nil
		var cancel func()
		if byCancel {
			cancel = f.cancel
			f.canceled = true
		}
		f.cancel = nil
		close(f.done)
		f.mu.Unlock()

		resolved = true
		for _, cb := range callbacks {
			runCallback(cb, v, err)
		}
		if cancel != nil {
			cancel()
		}
	})
	return resolved
}

// runCallback isolates one waiter: a panicking callback is logged and the
// remaining callbacks still run.
func runCallback[T any](cb func(T, error), v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(recovered(r)).Msg("async: future callback panicked")
		}
	}()
	cb(v, err)
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future resolves or ctx is done. The returned error has
// composition wrappers stripped. Get does not cancel the future when ctx ends.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, Cause(f.err)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run once with the outcome. If the future is
// already resolved fn runs immediately on the calling goroutine, otherwise on
// the goroutine that resolves it. The error is unwrapped with Cause.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.whenDone(func(v T, err error) { fn(v, Cause(err)) })
}

// whenDone is OnComplete without unwrapping, used by the combinators.
func (f *Future[T]) whenDone(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.value, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Cancel fails the future with context.Canceled and propagates cancellation
// to the work behind it when that work supports it. It returns false if the
// future had already resolved.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.resolve(zero, context.Canceled, true)
}

// OnCancel registers fn to run when Cancel wins the resolution race.
// Transports use it to abort in-flight requests. If the future was already
// cancelled fn runs immediately; if it resolved otherwise fn is dropped.
func (f *Future[T]) OnCancel(fn func()) {
	f.mu.Lock()
	if f.IsDone() {
		canceled := f.canceled
		f.mu.Unlock()
		if canceled {
			fn()
		}
		return
	}
	prev := f.cancel
	f.cancel = func() {
		if prev != nil {
			prev()
		}
		fn()
	}
	f.mu.Unlock()
}

// pipe resolves dst with the outcome of src, wrapping failures.
func pipe[T any](src, dst *Future[T]) {
	dst.OnCancel(func() { src.Cancel() })
	src.whenDone(func(v T, err error) {
		if err != nil {
			dst.Fail(compose(err))
			return
		}
		dst.Complete(v)
	})
}

// Then chains fn after f. fn runs only on success; failures skip it and
// propagate wrapped. A panic in fn fails the returned future.
func Then[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out := New[U]()
	out.OnCancel(func() { f.Cancel() })
	f.whenDone(func(v T, err error) {
		if err != nil {
			out.Fail(compose(err))
			return
		}
		next, perr := safeThen(fn, v)
		if perr != nil {
			out.Fail(compose(perr))
			return
		}
		pipe(next, out)
	})
	return out
}

func safeThen[T, U any](fn func(T) *Future[U], v T) (next *Future[U], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	next = fn(v)
	if next == nil {
		next = Completed(*new(U))
	}
	return next, nil
}

// Map transforms the value of f with fn.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Then(f, func(v T) *Future[U] {
		u, err := fn(v)
		if err != nil {
			return Failed[U](err)
		}
		return Completed(u)
	})
}

// Recover substitutes the outcome of fn when f fails. fn receives the
// unwrapped cause. Successful values pass through.
func Recover[T any](f *Future[T], fn func(error) *Future[T]) *Future[T] {
	out := New[T]()
	out.OnCancel(func() { f.Cancel() })
	f.whenDone(func(v T, err error) {
		if err == nil {
			out.Complete(v)
			return
		}
		next, perr := safeThen(fn, Cause(err))
		if perr != nil {
			out.Fail(compose(perr))
			return
		}
		pipe(next, out)
	})
	return out
}

// Go runs fn on exec and returns its future. The context passed to fn is
// cancelled when the future is cancelled. A panic in fn fails the future with
// a PanicError. If exec refuses the task the future fails with that error.
func Go[T any](ctx context.Context, exec Executor, fn func(context.Context) (T, error)) *Future[T] {
	f := New[T]()
	taskCtx, cancel := context.WithCancel(ctx)
	f.OnCancel(cancel)

	err := exec.Submit(ctx, func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				f.Fail(compose(recovered(r)))
			}
		}()
		v, err := fn(taskCtx)
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(v)
	})
	if err != nil {
		cancel()
		f.Fail(err)
	}
	return f
}
