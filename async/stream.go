package async

import (
	"context"
	"reflect"
	"sync"
)

// Subscriber receives stream signals. OnNext may be called any number of
// times, followed by at most one of OnError or OnComplete. Nil callbacks are
// skipped.
type Subscriber[T any] struct {
	OnNext     func(T)
	OnError    func(error)
	OnComplete func()
}

// Stream is a cold sequence of values. Nothing happens until Subscribe, and
// every subscription runs the source again.
type Stream[T any] struct {
	source func(ctx context.Context, emit func(T)) error
}

// NewStream creates a stream from source. source emits values and returns nil
// to complete or an error to fail. It must stop when ctx is done.
func NewStream[T any](source func(ctx context.Context, emit func(T)) error) *Stream[T] {
	return &Stream[T]{source: source}
}

// Just returns a stream emitting vs then completing.
func Just[T any](vs ...T) *Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T)) error {
		for _, v := range vs {
			if err := ctx.Err(); err != nil {
				return err
			}
			emit(v)
		}
		return nil
	})
}

// FromFuture returns a stream that waits on the future produced by start and
// emits its value, then completes. A nil value completes without emitting.
func FromFuture[T any](start func(ctx context.Context) *Future[T]) *Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T)) error {
		f := start(ctx)
		v, err := f.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.Cancel()
			}
			return err
		}
		if !isNil(v) {
			emit(v)
		}
		return nil
	})
}

// Subscription controls a running subscription.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the subscription. No further signals are delivered.
func (s *Subscription) Cancel() { s.cancel() }

// Done is closed after the terminal signal has been delivered or the
// subscription was cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe runs the source on a new goroutine and delivers its signals to sub.
func (s *Stream[T]) Subscribe(ctx context.Context, sub Subscriber[T]) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	subscription := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(subscription.done)
		defer cancel()

		var mu sync.Mutex
		emit := func(v T) {
			mu.Lock()
			defer mu.Unlock()
			if ctx.Err() != nil || sub.OnNext == nil {
				return
			}
			sub.OnNext(v)
		}

		err := s.run(ctx, emit)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if ctx.Err() != nil && Cause(err) == ctx.Err() {
				return
			}
			if sub.OnError != nil {
				sub.OnError(Cause(err))
			}
			return
		}
		if sub.OnComplete != nil {
			sub.OnComplete()
		}
	}()

	return subscription
}

func (s *Stream[T]) run(ctx context.Context, emit func(T)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return s.source(ctx, emit)
}

// Collect subscribes and blocks until the stream terminates, returning every
// emitted value.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var (
		out []T
		err error
	)
	sub := s.Subscribe(ctx, Subscriber[T]{
		OnNext:  func(v T) { out = append(out, v) },
		OnError: func(e error) { err = e },
	})
	select {
	case <-sub.Done():
	case <-ctx.Done():
		sub.Cancel()
		<-sub.Done()
		return out, ctx.Err()
	}
	return out, err
}

// OnErrorResume switches to the stream returned by fn when s fails.
func (s *Stream[T]) OnErrorResume(fn func(error) *Stream[T]) *Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T)) error {
		err := s.run(ctx, emit)
		if err == nil || ctx.Err() != nil {
			return err
		}
		next := fn(Cause(err))
		if next == nil {
			return nil
		}
		return next.run(ctx, emit)
	})
}

// MapStream transforms each value of s with fn. An error from fn fails the
// stream.
func MapStream[T, U any](s *Stream[T], fn func(T) (U, error)) *Stream[U] {
	return NewStream(func(ctx context.Context, emit func(U)) error {
		var ferr error
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := s.run(cctx, func(v T) {
			if ferr != nil {
				return
			}
			u, err := fn(v)
			if err != nil {
				ferr = err
				cancel()
				return
			}
			emit(u)
		})
		if ferr != nil {
			return compose(ferr)
		}
		return err
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
