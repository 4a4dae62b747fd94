package task

import "context"

// CancelToken is the single cooperative cancellation signal observed by
// every component at every suspension point (spec.md §5, §9: "A single
// cooperative cancellation signal observed at every suspension point; no
// component may busy-wait"). It's a thin wrapper over context.Context, the
// same single-context.WithCancel scoping sql/export.Exporter.Export uses
// around its reader/writer goroutine pair, generalized from a 2-goroutine
// scope to the whole pipeline's lifetime.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken derives a CancelToken from parent.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Context returns the context every component should select on.
func (t *CancelToken) Context() context.Context { return t.ctx }

// Done returns the channel closed once Cancel is called or the parent is
// done.
func (t *CancelToken) Done() <-chan struct{} { return t.ctx.Done() }

// Cancel signals every component to stop producing and drain.
func (t *CancelToken) Cancel() { t.cancel() }

// Err reports why the token was cancelled, or nil if it's still live.
func (t *CancelToken) Err() error { return t.ctx.Err() }
