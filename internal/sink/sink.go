// Package sink implements the Sinker contract and the fixed worker Pool
// (spec.md §4.4): N Sinker instances, worker i bound to sub-batch i within
// each dispatch cycle, with Conflict Policy error handling and retriable
// transport-error backoff.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/programlife555/ape-dts/internal/config"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/sink/retry"
)

// Sinker is the sink-side component of the pipeline. Implementations
// exist per config.DbType/config.SinkType combination.
type Sinker interface {
	// Sink applies batch. isMerged is true when the batch arrived via the
	// RdbMerge strategy, in which case Sink must be idempotent (re-applying
	// an Upsert/Delete it has already applied must be a no-op error-wise).
	Sink(ctx context.Context, batch []event.Event, isMerged bool) error

	// Close releases resources. Idempotent.
	Close() error
}

// Conflict is returned by Pool.Dispatch when a sub-batch failed and the
// configured ConflictPolicy is Ignore; the Orchestrator's Monitor should
// increment its conflict counter once per Conflict.
type Conflict struct {
	Worker int
	Err    error
}

func (c Conflict) Error() string {
	return fmt.Sprintf(`sink: worker %d conflict: %v`, c.Worker, c.Err)
}

// Pool is the fixed array of N Sinker instances.
type Pool struct {
	workers  []Sinker
	policy   config.ConflictPolicy
	backoff  *retry.Backoff
	retriable retry.Retriable
}

// NewPool builds a Pool. workers must have length N == parallel_size.
// retriable classifies which Sinker errors are transport-retriable
// (see spec.md §4.4); a nil retriable treats nothing as retriable.
func NewPool(workers []Sinker, policy config.ConflictPolicy, backoff *retry.Backoff, retriable retry.Retriable) *Pool {
	if len(workers) == 0 {
		panic(`sink: empty worker pool`)
	}
	if retriable == nil {
		retriable = func(error) bool { return false }
	}
	return &Pool{workers: workers, policy: policy, backoff: backoff, retriable: retriable}
}

// Len returns the worker count N.
func (p *Pool) Len() int { return len(p.workers) }

// Dispatch sends subBatches[i] to worker i concurrently (len(subBatches)
// must equal p.Len()), waits for all N acks, and classifies any failure
// per the configured ConflictPolicy: Ignore collects it as a Conflict and
// continues waiting for the remaining workers; Interrupt cancels the
// remaining workers' context on the first error and, once every worker
// has reported, returns that first error, following the teacher's
// two-channel error-collection idiom in
// sql/export.Exporter.Export (cancel on first error, collect exactly one
// result per goroutine).
func (p *Pool) Dispatch(ctx context.Context, subBatches [][]event.Event, isMerged bool) ([]Conflict, error) {
	if len(subBatches) != len(p.workers) {
		return nil, fmt.Errorf(`sink: sub-batch count %d does not match worker count %d`, len(subBatches), len(p.workers))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		worker int
		err    error
	}
	resultCh := make(chan result, len(p.workers))

	for i, batch := range subBatches {
		i, batch := i, batch
		go func() {
			if len(batch) == 0 {
				resultCh <- result{worker: i}
				return
			}
			var err error
			if p.backoff != nil {
				err = p.backoff.Do(ctx, i, p.retriable, func(ctx context.Context) error {
					return p.workers[i].Sink(ctx, batch, isMerged)
				})
			} else {
				err = p.workers[i].Sink(ctx, batch, isMerged)
			}
			resultCh <- result{worker: i, err: err}
		}()
	}

	var conflicts []Conflict
	var firstErr error

	for range p.workers {
		r := <-resultCh
		if r.err == nil {
			continue
		}
		switch p.policy {
		case config.ConflictPolicyIgnore:
			conflicts = append(conflicts, Conflict{Worker: r.worker, Err: r.err})
		default: // ConflictPolicyInterrupt, and anything fail-safe-coerced to it
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
		}
	}

	if firstErr != nil {
		return conflicts, firstErr
	}
	return conflicts, nil
}

// Close closes every worker, joining any errors.
func (p *Pool) Close() error {
	var errs []error
	for _, w := range p.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
