// Package monitor implements the Monitor component (spec.md §4.7): counters
// (rows, bytes, errors, conflicts), a batch-latency and end-to-end-lag
// histogram, and a rolling QPS, updated non-blocking on the hot path and
// snapshotted under a short lock (spec.md §5: "no component holds a lock
// across a suspension point except the Monitor's accumulator lock, which is
// never held across I/O").
package monitor

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time read of the aggregator, safe to log or expose
// on a metrics endpoint.
type Snapshot struct {
	Rows      int64
	Bytes     int64
	Errors    int64
	Conflicts int64

	BatchLatency Histogram
	EndToEndLag  Histogram

	QPS float64
}

// Histogram is a minimal running summary (count, sum, min, max) -- spec.md
// only requires latency/lag be observable in aggregate, not full
// percentile buckets, so a running summary is the minimum machinery that
// satisfies the invariant without inventing an unneeded quantile sketch.
type Histogram struct {
	Count int64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

func (h *Histogram) observe(d time.Duration) {
	if h.Count == 0 || d < h.Min {
		h.Min = d
	}
	if d > h.Max {
		h.Max = d
	}
	h.Sum += d
	h.Count++
}

// Mean returns the running mean, or 0 if no observations have landed yet.
func (h Histogram) Mean() time.Duration {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / time.Duration(h.Count)
}

// WorkerCounters is a per-worker local accumulator, flushed into the shared
// Monitor at batch boundaries (SPEC_FULL.md §4.7: "per-worker local
// counters are plain structs flushed into a single sync.Mutex-guarded
// aggregator at batch boundaries"), so the hot path (one ExecContext per
// row) never touches the shared lock.
type WorkerCounters struct {
	Rows      int64
	Bytes     int64
	Errors    int64
	Conflicts int64

	batchLatencies []time.Duration
	lags           []time.Duration
}

// AddRow records one applied row of byteSize bytes.
func (w *WorkerCounters) AddRow(byteSize int64) {
	w.AddRows(1, byteSize)
}

// AddRows records n applied rows totaling byteSize bytes, for events (e.g.
// FileBatch) that represent more than one logical row per Event value.
func (w *WorkerCounters) AddRows(n, byteSize int64) {
	w.Rows += n
	w.Bytes += byteSize
}

// AddError records one sink error.
func (w *WorkerCounters) AddError() { w.Errors++ }

// AddConflict records one Conflict-policy-collected failure.
func (w *WorkerCounters) AddConflict() { w.Conflicts++ }

// ObserveBatchLatency records the wall-clock duration a dispatch cycle took.
func (w *WorkerCounters) ObserveBatchLatency(d time.Duration) {
	w.batchLatencies = append(w.batchLatencies, d)
}

// ObserveLag records end-to-end lag (now - commit_ts) for an applied event.
func (w *WorkerCounters) ObserveLag(d time.Duration) {
	w.lags = append(w.lags, d)
}

// Reset clears w for reuse after a flush.
func (w *WorkerCounters) Reset() {
	*w = WorkerCounters{}
}

// Monitor is the single cross-component shared mutable aggregator (spec.md
// §5: "The Monitor aggregator is the only cross-component shared mutable
// state").
type Monitor struct {
	mu sync.Mutex

	rows, bytes, errors, conflicts int64
	batchLatency, endToEndLag      Histogram

	qpsWindowStart time.Time
	qpsWindowRows  int64
	qps            float64
	now            func() time.Time
}

// New builds an empty Monitor.
func New() *Monitor {
	return &Monitor{now: time.Now, qpsWindowStart: time.Now()}
}

// Flush merges a worker's local accumulator into the shared aggregator,
// non-blocking beyond the short critical section, and never held across
// I/O (the caller must have already completed any I/O before calling
// Flush).
func (m *Monitor) Flush(w *WorkerCounters) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows += w.Rows
	m.bytes += w.Bytes
	m.errors += w.Errors
	m.conflicts += w.Conflicts
	for _, d := range w.batchLatencies {
		m.batchLatency.observe(d)
	}
	for _, d := range w.lags {
		m.endToEndLag.observe(d)
	}

	m.qpsWindowRows += w.Rows
	m.rollQPSLocked()
}

// rollQPSLocked recomputes the rolling QPS once the current window exceeds
// one second, resetting the window. Must be called with mu held.
func (m *Monitor) rollQPSLocked() {
	elapsed := m.now().Sub(m.qpsWindowStart)
	if elapsed < time.Second {
		return
	}
	m.qps = float64(m.qpsWindowRows) / elapsed.Seconds()
	m.qpsWindowRows = 0
	m.qpsWindowStart = m.now()
}

// Snapshot returns a consistent point-in-time read of the aggregator.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Rows:         m.rows,
		Bytes:        m.bytes,
		Errors:       m.errors,
		Conflicts:    m.conflicts,
		BatchLatency: m.batchLatency,
		EndToEndLag:  m.endToEndLag,
		QPS:          m.qps,
	}
}
