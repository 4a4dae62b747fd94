// Package retry implements the Sinker pool's retriable-transport-error
// handling (spec.md §4.4): "retriable transport errors (connection drops)
// are retried internally with exponential backoff up to max_retries before
// being reclassified as conflicts." Rate-limiting the retry attempts per
// endpoint category uses github.com/joeycumines/go-catrate.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/go-catrate"
)

// ErrMaxRetriesExceeded is returned once an operation has failed on
// max_retries attempts in total; the caller reclassifies this as a
// conflict (spec.md §4.4).
var ErrMaxRetriesExceeded = errors.New(`retry: max retries exceeded`)

// Backoff bounds retry attempts for retriable errors, per endpoint
// category, using an exponential delay schedule rate-limited by a
// catrate.Limiter so that a storm of failures across many workers
// targeting the same endpoint doesn't retry in lockstep.
type Backoff struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	limiter    *catrate.Limiter
}

// NewBackoff builds a Backoff. maxRetries is config.SinkerSection.MaxRetries
// (at least 1 is enforced). base/max bound the exponential delay; base
// defaults to 50ms and max to 5s if either is <= 0.
func NewBackoff(maxRetries int, base, max time.Duration) *Backoff {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return &Backoff{
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 20,
		}),
	}
}

// Retriable classifies an error as transport-retriable. isRetriable is
// the classifier supplied by the concrete Sinker (e.g. extract.Retriable
// for the shared connection-lost sentinel, or a driver-specific check).
type Retriable func(err error) bool

// Do runs op, retrying while isRetriable(err) is true, up to maxRetries
// attempts, honoring ctx cancellation and the per-category rate limit.
// It returns ErrMaxRetriesExceeded (wrapping the last error) once
// retries are exhausted.
func (b *Backoff) Do(ctx context.Context, category any, isRetriable Retriable, op func(ctx context.Context) error) error {
	var lastErr error
	delay := b.base

	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait, ok := b.limiter.Allow(category); !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Until(wait)):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isRetriable(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > b.max {
			delay = b.max
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}
