// Package reset implements the fleet-wide destructive clear across every
// discovered queue. Failure isolation is per queue: one broken queue never
// aborts processing of the rest.
package reset

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"

	"github.com/pitabwire/qdash/queues"
)

// Status classifies one queue's reset outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome records the result of clearing one queue.
type Outcome struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result aggregates a bulk reset invocation. Attempted is false only when
// the registry itself could not be read — a process-level failure distinct
// from any individual queue failing.
type Result struct {
	Attempted bool      `json:"overallAttempted"`
	Outcomes  []Outcome `json:"perQueue"`
}

// Submitter schedules a task on a bounded worker pool.
type Submitter interface {
	Submit(ctx context.Context, task func()) error
}

// Executor clears every queue in the registry's current list.
type Executor struct {
	Registry *queues.Registry

	// Pool, when set together with Concurrency > 1, runs per-queue clears on
	// bounded workers. Aggregation stays order-stable either way.
	Pool        Submitter
	Concurrency int
}

// ResetAll invokes the destructive clear on every queue in the registry's
// current list, in registry order. Each queue's failure is recorded in its
// outcome and never escalated; the batch always runs to the end of the list.
func (e *Executor) ResetAll(ctx context.Context, force bool) Result {
	ctx, span := otel.Tracer("qdash/reset").Start(ctx, "reset.Executor.ResetAll")
	defer span.End()

	log := util.Log(ctx).WithField("reset_id", xid.New().String())

	if e.Registry == nil || !e.Registry.Populated() {
		log.Error("bulk reset refused: registry has never been populated")
		return Result{Attempted: false}
	}

	adapters := e.Registry.Current()
	outcomes := make([]Outcome, len(adapters))

	if e.Pool != nil && e.Concurrency > 1 {
		e.runPooled(ctx, adapters, outcomes, force)
	} else {
		for i, adapter := range adapters {
			outcomes[i] = clearOne(ctx, adapter, force)
		}
	}

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Status == StatusError {
			failed++
		}
	}
	log.WithField("queues", len(outcomes)).WithField("failed", failed).
		Info("bulk reset complete")

	return Result{Attempted: true, Outcomes: outcomes}
}

// runPooled fans per-queue clears onto the worker pool, bounded by a
// semaphore, writing each outcome into its registry-order slot.
func (e *Executor) runPooled(ctx context.Context, adapters []queues.Adapter, outcomes []Outcome, force bool) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.Concurrency)

	for i, adapter := range adapters {
		sem <- struct{}{}
		wg.Add(1)

		run := func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			outcomes[i] = clearOne(ctx, adapter, force)
		}

		if err := e.Pool.Submit(ctx, run); err != nil {
			// Pool saturated or context done: run inline rather than lose
			// the queue's slot in the batch.
			run()
		}
	}

	wg.Wait()
}

// clearOne invokes one queue's destructive clear, converting any failure —
// including a panic inside the client — into that queue's outcome.
func clearOne(ctx context.Context, adapter queues.Adapter, force bool) (outcome Outcome) {
	outcome = Outcome{Name: adapter.Name(), Status: StatusSuccess}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusError
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := adapter.Obliterate(ctx, force); err != nil {
		util.Log(ctx).WithError(err).WithField("queue", adapter.Name()).
			Warn("queue clear failed")
		return Outcome{Name: adapter.Name(), Status: StatusError, Error: err.Error()}
	}

	return outcome
}
