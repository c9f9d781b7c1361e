package driver

import (
	"context"
)

// Future is a pending execution result. The mapping layer performs no
// waiting of its own; a Future simply hands the caller the point to block
// on or poll.
type Future struct {
	done chan struct{}
	res  *Result
	err  error
}

// Go runs fn on its own goroutine and returns the Future that resolves
// with its outcome.
func Go(fn func() (*Result, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.res, f.err = fn()
		close(f.done)
	}()
	return f
}

// Resolved returns an already-completed Future. Used when statement
// building fails before anything is submitted.
func Resolved(res *Result, err error) *Future {
	f := &Future{done: make(chan struct{}), res: res, err: err}
	close(f.done)
	return f
}

// Get blocks until the result is available.
func (f *Future) Get() (*Result, error) {
	<-f.done
	return f.res, f.err
}

// GetContext blocks until the result is available or ctx is done.
func (f *Future) GetContext(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports without blocking whether the result is available.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
