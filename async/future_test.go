package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolvesOnce(t *testing.T) {
	t.Parallel()

	f := New[int]()
	assert.True(t, f.Complete(1))
	assert.False(t, f.Complete(2))
	assert.False(t, f.Fail(errors.New("late")))

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, f.IsDone())
}

func TestFuture_OnComplete(t *testing.T) {
	t.Parallel()

	t.Run("given pending future, then callback runs on resolution", func(t *testing.T) {
		f := New[string]()
		var got atomic.Value
		f.OnComplete(func(v string, _ error) { got.Store(v) })

		assert.Nil(t, got.Load())
		f.Complete("done")
		assert.Equal(t, "done", got.Load())
	})

	t.Run("given resolved future, then callback runs immediately", func(t *testing.T) {
		f := Completed("ready")
		var got string
		f.OnComplete(func(v string, _ error) { got = v })
		assert.Equal(t, "ready", got)
	})

	t.Run("given panicking callback, then later callbacks and continuations still run", func(t *testing.T) {
		f := Go(context.Background(), GoExecutor{}, func(context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 1, nil
		})
		second := make(chan int, 1)
		f.OnComplete(func(int, error) { panic("boom") })
		f.OnComplete(func(v int, _ error) { second <- v })
		next := Map(f, func(v int) (int, error) { return v + 1, nil })

		select {
		case v := <-second:
			assert.Equal(t, 1, v)
		case <-time.After(time.Second):
			t.Fatal("second callback never ran")
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		got, err := next.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, got)

		v, err := f.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, v, "a callback panic must not change the outcome")
	})
}

func TestFuture_Get_ContextDone(t *testing.T) {
	t.Parallel()

	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.IsDone(), "Get must not cancel the future")
}

func TestFuture_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("given pending future, then fails with canceled and runs cancel hooks", func(t *testing.T) {
		f := New[int]()
		var hooked atomic.Bool
		f.OnCancel(func() { hooked.Store(true) })

		assert.True(t, f.Cancel())
		assert.True(t, hooked.Load())

		_, err := f.Get(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("given resolved future, then cancel is a no-op", func(t *testing.T) {
		f := Completed(5)
		var hooked atomic.Bool
		f.OnCancel(func() { hooked.Store(true) })

		assert.False(t, f.Cancel())
		assert.False(t, hooked.Load())
	})

	t.Run("given hook registered after cancel, then hook runs immediately", func(t *testing.T) {
		f := New[int]()
		require.True(t, f.Cancel())

		var hooked atomic.Bool
		f.OnCancel(func() { hooked.Store(true) })
		assert.True(t, hooked.Load())
	})

	t.Run("given hooks registered concurrently with cancel, then every hook runs once", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			f := New[int]()
			var calls atomic.Int32
			registered := make(chan struct{})
			go func() {
				f.OnCancel(func() { calls.Add(1) })
				close(registered)
			}()
			f.Cancel()
			<-registered
			assert.Equal(t, int32(1), calls.Load())
		}
	})

	t.Run("given Go task, then cancel propagates into task context", func(t *testing.T) {
		started := make(chan struct{})
		stopped := make(chan error, 1)
		f := Go(context.Background(), GoExecutor{}, func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			stopped <- ctx.Err()
			return 0, ctx.Err()
		})

		<-started
		f.Cancel()

		select {
		case err := <-stopped:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("task context was not cancelled")
		}
	})
}

func TestThen_Map_Recover(t *testing.T) {
	t.Parallel()

	rootErr := errors.New("root")

	tests := []struct {
		name    string
		build   func() *Future[int]
		want    int
		wantErr error
	}{
		{
			name: "given success, then Map transforms value",
			build: func() *Future[int] {
				return Map(Completed(2), func(v int) (int, error) { return v * 10, nil })
			},
			want: 20,
		},
		{
			name: "given upstream failure, then Map is skipped and root cause surfaces",
			build: func() *Future[int] {
				return Map(Failed[int](rootErr), func(int) (int, error) {
					panic("must not run")
				})
			},
			wantErr: rootErr,
		},
		{
			name: "given failure, then Recover substitutes value",
			build: func() *Future[int] {
				return Recover(Failed[int](rootErr), func(err error) *Future[int] {
					if errors.Is(err, rootErr) {
						return Completed(7)
					}
					return Failed[int](err)
				})
			},
			want: 7,
		},
		{
			name: "given nested Then stages, then failure surfaces unwrapped",
			build: func() *Future[int] {
				inner := Then(Completed(1), func(int) *Future[int] { return Failed[int](rootErr) })
				return Then(inner, func(v int) *Future[int] { return Completed(v) })
			},
			wantErr: rootErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build().Get(context.Background())
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThen_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	f := Then(Completed(1), func(int) *Future[int] { panic("boom") })
	_, err := f.Get(context.Background())

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
}

func TestCause(t *testing.T) {
	t.Parallel()

	root := errors.New("root cause")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "given nil, then returns nil",
			err:  nil,
			want: nil,
		},
		{
			name: "given plain error, then returns it unchanged",
			err:  root,
			want: root,
		},
		{
			name: "given doubly-wrapped composition error, then returns root cause",
			err:  &CompositionError{Err: &CompositionError{Err: root}},
			want: root,
		},
		{
			name: "given domain error wrapping a composition error, then keeps the domain error",
			err:  &domainErr{inner: &CompositionError{Err: root}},
			want: &domainErr{inner: &CompositionError{Err: root}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cause(tt.err))
		})
	}
}

type domainErr struct{ inner error }

func (e *domainErr) Error() string { return "domain: " + e.inner.Error() }
func (e *domainErr) Unwrap() error { return e.inner }
