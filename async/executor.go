package async

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks. Submit must not block on the task itself; it may block
// while waiting for capacity, honoring ctx.
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("async: executor closed")

// GoExecutor starts one goroutine per task.
type GoExecutor struct{}

// Submit implements Executor.
func (GoExecutor) Submit(_ context.Context, task func()) error {
	go task()
	return nil
}

// InlineExecutor runs tasks on the submitting goroutine. Useful in tests and
// for handlers that are already running off the caller's goroutine.
type InlineExecutor struct{}

// Submit implements Executor.
func (InlineExecutor) Submit(_ context.Context, task func()) error {
	task()
	return nil
}

// Pool bounds the number of tasks running at once. Tasks beyond the limit wait
// in Submit until a slot frees up or ctx is done.
type Pool struct {
	sem    *semaphore.Weighted
	closed chan struct{}
}

// NewPool creates a pool running at most size tasks concurrently.
// A size <= 0 uses runtime.GOMAXPROCS(0) * 4.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0) * 4
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		closed: make(chan struct{}),
	}
}

// Submit implements Executor.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.closed:
		return ErrExecutorClosed
	default:
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

// Close stops accepting new tasks. Running tasks are not interrupted.
func (p *Pool) Close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
}
