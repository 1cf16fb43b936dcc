// Package workers runs blocking work (subprocess waits, large file writes,
// synchronous filesystem calls) on a bounded set of goroutines so network
// goroutines are never stuck behind it.
package workers

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many blocking jobs run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New returns a pool with size slots. size <= 0 uses GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on a pool goroutine and waits for it to finish.
// Once fn has started it always runs to completion; ctx only bounds the wait
// for a free slot.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		done <- fn()
	}()
	return <-done
}

// Run is Do for jobs that produce a value.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
