// Package workerpool wraps the ants goroutine pool behind the small submit
// surface the service needs for background discovery and bulk operations.
package workerpool

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"
)

// Options defines configurable options for the worker pool.
type Options struct {
	Capacity       int
	ExpiryDuration time.Duration
	Nonblocking    bool
	Logger         *util.LogEntry
}

// Pool runs submitted tasks on a bounded set of workers.
type Pool struct {
	pool *ants.Pool
}

// New creates a worker pool with the supplied options.
func New(_ context.Context, opts Options) (*Pool, error) {
	antsOpts := []ants.Option{
		ants.WithNonblocking(opts.Nonblocking),
	}
	if opts.ExpiryDuration > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(opts.ExpiryDuration))
	}
	if opts.Logger != nil {
		antsOpts = append(antsOpts, ants.WithLogger(opts.Logger))
	}

	p, err := ants.NewPool(opts.Capacity, antsOpts...)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p}, nil
}

// Submit schedules a task, refusing once the supplied context is done.
func (w *Pool) Submit(ctx context.Context, task func()) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return w.pool.Submit(task)
}

// Shutdown releases the pool's workers.
func (w *Pool) Shutdown() {
	w.pool.Release()
}
