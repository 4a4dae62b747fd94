// Package task implements the Orchestrator (spec.md §4.5): it runs a
// pipeline graph whose components the caller has already built (see
// cmd/dts-task), resumes the Extractor from the saved checkpoint, runs the
// Extractor in its own goroutine, owns the single CancelToken, drives
// checkpoint barriers, and maps the first observed error to an exit code.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/programlife555/ape-dts/internal/checkpoint"
	"github.com/programlife555/ape-dts/internal/config"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/extract"
	"github.com/programlife555/ape-dts/internal/filter"
	"github.com/programlife555/ape-dts/internal/logging"
	"github.com/programlife555/ape-dts/internal/monitor"
	"github.com/programlife555/ape-dts/internal/parallel"
	"github.com/programlife555/ape-dts/internal/queue"
	"github.com/programlife555/ape-dts/internal/sink"
)

// Task owns one pipeline's component graph: Extractor -> Queue -> Filter ->
// Parallelizer -> Sinker Pool, plus the Monitor and checkpoint Store that
// cut across all of them.
type Task struct {
	TaskID string
	DbType string

	Extractor    extract.Extractor
	Queue        *queue.Queue
	Router       *filter.Router
	Parallelizer *parallel.Parallelizer
	Pool         *sink.Pool
	Checkpoints  checkpoint.Store
	Monitor      *monitor.Monitor
	Logger       *logging.Logger

	CheckpointInterval time.Duration
	ShutdownTimeout    time.Duration

	// isMergedStrategy reports whether the configured Parallelizer
	// strategy produces already-deduplicated-by-key sub-batches (RdbMerge),
	// which the Sinker contract (spec.md §4.4) requires it be told about so
	// it can apply Upsert/Delete idempotently.
	isMergedStrategy bool
}

// committed tracks the greatest Position whose enclosing CheckpointMarker
// has been fully acknowledged by every worker (spec.md §4.5).
type committed struct {
	position event.Position
	commitTS time.Time
	valid    bool
}

// Run drives the pipeline to completion: it resumes from the last saved
// checkpoint (if any), starts the Extractor, and processes batches until
// clean end-of-stream, cancellation, or a fatal error. The returned error,
// passed to ExitCode, determines the process exit code.
func (t *Task) Run(ctx context.Context) error {
	token := NewCancelToken(ctx)
	defer token.Cancel()

	var last committed
	if rec, ok, err := t.Checkpoints.Load(ctx, t.TaskID); err != nil {
		return fmt.Errorf(`task: load checkpoint: %w`, err)
	} else if ok {
		pos, err := rec.Position()
		if err != nil {
			return fmt.Errorf(`task: decode checkpoint position: %w`, err)
		}
		last = committed{position: pos, commitTS: rec.CommitTS, valid: true}
		if err := t.Extractor.ResumeFrom(pos); err != nil {
			return fmt.Errorf(`task: resume extractor: %w`, err)
		}
	}

	extractErrCh := make(chan error, 1)
	go func() {
		err := t.Extractor.Start(token.Context(), t.Queue)
		// Close unblocks a pending Dequeue with io.EOF once extraction has
		// genuinely finished (clean exhaustion or an error unwind) -- the
		// Extractor can't do this itself since extract.EventSink exposes
		// only Enqueue.
		t.Queue.Close()
		extractErrCh <- err
	}()

	runErr := t.mainLoop(token, &last)

	// The Extractor is the only component with its own goroutine; give it
	// up to ShutdownTimeout to observe cancellation and return before we
	// abandon it (spec.md §5: "past it, the Orchestrator abandons
	// components").
	token.Cancel()
	select {
	case extractErr := <-extractErrCh:
		if runErr == nil && extractErr != nil && !errors.Is(extractErr, context.Canceled) {
			runErr = extractErr
		}
	case <-time.After(t.shutdownTimeout()):
		t.Logger.Warning().Log(`extractor did not stop within shutdown_timeout_ms; abandoning`)
	}

	if flushErr := t.flushCheckpoint(ctx, &last); flushErr != nil && runErr == nil {
		runErr = flushErr
	}

	return runErr
}

func (t *Task) shutdownTimeout() time.Duration {
	if t.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return t.ShutdownTimeout
}

func (t *Task) checkpointInterval() time.Duration {
	if t.CheckpointInterval <= 0 {
		return 5 * time.Second
	}
	return t.CheckpointInterval
}

// mainLoop dequeues batches, filters and partitions them, dispatches each
// phase, and persists checkpoints at barriers and on a timer, whichever
// comes first (spec.md §4.5).
func (t *Task) mainLoop(token *CancelToken, last *committed) error {
	lastFlush := time.Now()

	for {
		if err := token.Err(); err != nil {
			return err
		}

		batch, err := t.Queue.Dequeue(token.Context())
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return err
		}

		// A closed Queue returns its last partial batch with a nil error and
		// io.EOF only on the following call (internal/queue.Dequeue); any
		// non-empty batch is processed before an io.EOF ends the loop.
		if len(batch) > 0 {
			admitted := make([]event.Event, 0, len(batch))
			for _, e := range batch {
				if !t.Router.Admit(e) {
					continue
				}
				admitted = append(admitted, t.Router.Project(e))
			}

			phases, err := t.Parallelizer.Partition(admitted)
			if err != nil {
				return fmt.Errorf(`%w: %v`, ErrProtocolViolation, err)
			}

			for _, phase := range phases {
				switch phase.Kind {
				case parallel.PhaseApply:
					if err := t.dispatchApply(token.Context(), phase); err != nil {
						return err
					}
				case parallel.PhaseBarrier:
					last.position = phase.Position
					last.commitTS = time.Now()
					last.valid = true
					if err := t.saveCheckpoint(token.Context(), last); err != nil {
						return fmt.Errorf(`%w: %v`, ErrCheckpointStoreFailure, err)
					}
					lastFlush = time.Now()
				case parallel.PhaseDDL:
					if err := t.dispatchDDL(token.Context(), phase); err != nil {
						return err
					}
				}
			}

			if time.Since(lastFlush) >= t.checkpointInterval() && last.valid {
				if err := t.saveCheckpoint(token.Context(), last); err != nil {
					return fmt.Errorf(`%w: %v`, ErrCheckpointStoreFailure, err)
				}
				lastFlush = time.Now()
			}
		}

		if eof {
			return nil
		}
	}
}

func (t *Task) dispatchApply(ctx context.Context, phase parallel.Phase) error {
	start := time.Now()
	conflicts, err := t.Pool.Dispatch(ctx, phase.SubBatches, t.isMergedStrategy)

	var w monitor.WorkerCounters
	for _, sub := range phase.SubBatches {
		for _, e := range sub {
			if e.Kind == event.KindFileBatch {
				// A FileBatch event stands in for every row staged in its
				// file (internal/sink/foxlake.Merger), not one row itself.
				w.AddRows(e.FileRowCount, e.FileByteSize)
			} else {
				w.AddRow(estimateSize(e))
			}
			if !e.CommitTS.IsZero() {
				w.ObserveLag(time.Since(e.CommitTS))
			}
		}
	}
	w.ObserveBatchLatency(time.Since(start))
	for range conflicts {
		w.AddConflict()
	}
	t.Monitor.Flush(&w)

	if err != nil {
		return err
	}
	return nil
}

func (t *Task) dispatchDDL(ctx context.Context, phase parallel.Phase) error {
	// DDL is always serialized through worker 0 (spec.md §4.3 rule ii): the
	// Parallelizer has already flushed any pending apply work ahead of this
	// phase, so a single-worker sub-batch array drains the rest as no-ops.
	subBatches := make([][]event.Event, t.Pool.Len())
	subBatches[0] = []event.Event{phase.DDL}

	_, err := t.Pool.Dispatch(ctx, subBatches, t.isMergedStrategy)
	return err
}

func (t *Task) saveCheckpoint(ctx context.Context, last *committed) error {
	rec, err := checkpoint.NewRecord(t.DbType, last.position, last.commitTS)
	if err != nil {
		return err
	}
	return t.Checkpoints.Save(ctx, t.TaskID, rec)
}

func (t *Task) flushCheckpoint(ctx context.Context, last *committed) error {
	if !last.valid {
		return nil
	}
	return t.saveCheckpoint(ctx, last)
}

// estimateSize approximates the byte footprint of e's Before/After row
// columns for the Monitor's bytes counter: the sum of each column's
// HashBytes() length, a cheap proxy that avoids re-deriving a full
// wire-size calculation per sink. FileBatch events carry their own
// FileByteSize instead and don't go through this path (dispatchApply).
func estimateSize(e event.Event) int64 {
	var n int64
	for _, row := range []*event.Event{&e} {
		if row.After != nil {
			for _, c := range row.After.Columns() {
				if v, ok := row.After.Get(c); ok {
					n += int64(len(v.HashBytes()))
				}
			}
		}
		if row.Before != nil {
			for _, c := range row.Before.Columns() {
				if v, ok := row.Before.Get(c); ok {
					n += int64(len(v.HashBytes()))
				}
			}
		}
	}
	return n
}

// NewMergedStrategy reports whether strategy produces sub-batches the
// Sinker contract must treat as already-deduplicated-by-key (spec.md §4.4:
// Sink's isMerged parameter).
func NewMergedStrategy(strategy config.ParallelType) bool {
	return strategy == config.ParallelTypeRdbMerge
}
