// Package extract defines the Extractor contract (spec.md §4.2): the
// source-side component that produces Events into an EventSink, honoring
// a CancelToken, and resumable from a saved Position.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/programlife555/ape-dts/internal/event"
)

// EventSink receives events produced by an Extractor, in extractor order.
type EventSink interface {
	Enqueue(ctx context.Context, e event.Event) error
}

// Extractor is the source-side component of the pipeline. Implementations
// exist per config.DbType/config.ExtractType combination (mysql cdc,
// pg cdc, mongo cdc, redis, snapshot scan, struct check, foxlake s3...).
type Extractor interface {
	// ResumeFrom sets the starting point; must be called before Start, if
	// called at all. Implementations that ignore the resume position
	// (e.g. a one-shot Snapshot Extractor) may treat this as a no-op.
	ResumeFrom(pos event.Position) error

	// Start begins producing events into sink. It returns when ctx is
	// cancelled, or when the source is exhausted (snapshot mode); a
	// ConnectionLost or Unrecoverable error may also cause an early
	// return. Start must emit a Heartbeat at least once per the
	// configured heartbeat interval even if otherwise idle, and a
	// CheckpointMarker at every source-visible transaction boundary (or
	// synthetically, if the source has none).
	Start(ctx context.Context, sink EventSink) error

	// Close releases any held connections or resources. Idempotent.
	Close() error
}

var (
	// ErrConnectionLost indicates a retriable transport failure (network
	// blip, server restart) -- the Orchestrator may retry Start.
	ErrConnectionLost = errors.New(`extract: connection lost`)

	// ErrUnrecoverable indicates a fatal, non-retriable failure (e.g. the
	// requested binlog position has been purged from the source) -- the
	// Orchestrator must not retry Start.
	ErrUnrecoverable = errors.New(`extract: unrecoverable`)
)

// ConnectionLost wraps err as a retriable extraction failure.
func ConnectionLost(err error) error {
	return fmt.Errorf(`%w: %w`, ErrConnectionLost, err)
}

// Unrecoverable wraps err as a fatal extraction failure.
func Unrecoverable(err error) error {
	return fmt.Errorf(`%w: %w`, ErrUnrecoverable, err)
}

// Retriable reports whether err (or any error it wraps) represents a
// transient extraction failure the Orchestrator may retry.
func Retriable(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}
