// Package queue implements the bounded Event Queue between the Extractor
// and the Parallelizer (spec.md §4.1). Enqueue is a blocking send on a
// fixed-capacity channel, giving backpressure on full; Dequeue batches up
// to a configured size, flushing early once a configured interval elapses.
//
// The design follows the MaxSize/PartialTimeout batch-or-timeout drain
// loop of longpoll.Channel, specialized from a generic
// longpoll.Channel[T any] to the engine's event.Event type, with
// microbatch.Batcher's Shutdown ordering (drain before signalling
// end-of-stream). The flush timer runs inside each Dequeue call; there is
// no single-slot handoff and no background goroutine.
package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
)

// Config controls batching behavior. BatchSize is the maximum number of
// events per Dequeue call; FlushInterval is the maximum time Dequeue will
// wait for BatchSize events before returning a smaller batch.
type Config struct {
	// BufferSize is the channel capacity. Defaults to 1024 if <= 0.
	BufferSize int

	// BatchSize is the maximum batch returned per Dequeue. Defaults to 200
	// if <= 0.
	BatchSize int

	// FlushInterval bounds how long Dequeue waits for BatchSize events
	// before flushing a partial batch. Defaults to 200ms if <= 0.
	FlushInterval time.Duration
}

// Queue is the bounded Event Queue. The zero value is not usable; use New.
type Queue struct {
	ch       chan event.Event
	batch    int
	flush    time.Duration
	closed   chan struct{}
	closeDoc sync.Once
}

// New creates a Queue honoring cfg (cfg may be nil for all defaults).
func New(cfg *Config) *Queue {
	bufferSize := 1024
	batchSize := 200
	flushInterval := 200 * time.Millisecond
	if cfg != nil {
		if cfg.BufferSize > 0 {
			bufferSize = cfg.BufferSize
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.FlushInterval > 0 {
			flushInterval = cfg.FlushInterval
		}
	}
	return &Queue{
		ch:     make(chan event.Event, bufferSize),
		batch:  batchSize,
		flush:  flushInterval,
		closed: make(chan struct{}),
	}
}

// Enqueue blocks until e is accepted, the queue is closed, or ctx is
// cancelled. Events enqueued by successive Enqueue calls from a single
// caller are delivered to Dequeue in that order (Invariant: extractor
// order is preserved since the underlying channel is FIFO).
func (q *Queue) Enqueue(ctx context.Context, e event.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return errors.New(`queue: closed`)
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return errors.New(`queue: closed`)
	case q.ch <- e:
		return nil
	}
}

// Close signals end-of-stream. Per spec.md §4.1, this should only be
// called after the Extractor has finished draining into the queue, so
// that buffered events are still delivered via Dequeue before io.EOF.
func (q *Queue) Close() {
	q.closeDoc.Do(func() {
		close(q.closed)
		close(q.ch)
	})
}

// Dequeue returns up to Config.BatchSize buffered events, waiting at most
// Config.FlushInterval for the batch to fill once the first event of a
// batch arrives. Once the queue is closed, a call that still collects a
// non-empty batch returns it with a nil error; io.EOF is only returned
// once the queue is closed AND fully drained, with no events in hand, so
// a caller that processes every non-empty batch before checking for
// io.EOF never drops a final partial batch. ctx cancellation returns
// ctx.Err() with whatever was collected so far.
func (q *Queue) Dequeue(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := make([]event.Event, 0, q.batch)

	// block for the first event (or closure/cancellation) with no timeout
	select {
	case <-ctx.Done():
		return batch, ctx.Err()
	case e, ok := <-q.ch:
		if !ok {
			// closed with nothing left to drain; a later call into an
			// already-closed, already-drained channel keeps returning this.
			return batch, io.EOF
		}
		batch = append(batch, e)
	}

	timer := time.NewTimer(q.flush)
	defer timer.Stop()

drain:
	for len(batch) < q.batch {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()

		case <-timer.C:
			break drain

		case e, ok := <-q.ch:
			if !ok {
				// batch already holds the events collected above; return
				// them now and let the next (empty) Dequeue report io.EOF,
				// so a partial final batch still reaches the Sinkers.
				break drain
			}
			batch = append(batch, e)

		default:
			// nothing immediately available; fall through to the timed
			// select so FlushInterval is honored even for sparse input
			select {
			case <-ctx.Done():
				return batch, ctx.Err()
			case <-timer.C:
				break drain
			case e, ok := <-q.ch:
				if !ok {
					break drain
				}
				batch = append(batch, e)
			}
		}
	}

	return batch, nil
}
