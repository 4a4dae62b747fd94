// Package parallel implements the Parallelizer (spec.md §4.3): it reads a
// batch from the Event Queue and splits it into per-worker sub-batches
// according to one of eight strategies, honoring the checkpoint-barrier
// and DDL-serialization rules that apply across all of them.
package parallel

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/slices"

	"github.com/programlife555/ape-dts/internal/config"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/logging"
	"github.com/programlife555/ape-dts/internal/value"
)

// Strategy identifies a Parallelizer strategy; the values are exactly
// config.ParallelType's constants.
type Strategy = config.ParallelType

// PhaseKind distinguishes the three kinds of work a Partition call can
// emit, per spec.md §4.3's "rules across strategies".
type PhaseKind int

const (
	// PhaseApply carries N sub-batches (N == Parallelizer.n) to be
	// dispatched to the worker pool concurrently.
	PhaseApply PhaseKind = iota
	// PhaseBarrier marks a CheckpointMarker: the Orchestrator must wait
	// for all prior PhaseApply sub-batches to be acknowledged before
	// advancing the committed position to Position.
	PhaseBarrier
	// PhaseDDL marks a DDL event: the Orchestrator must drain workers,
	// apply DDL through worker 0, and only then resume.
	PhaseDDL
)

// Phase is one unit of work emitted by Partition, in order.
type Phase struct {
	Kind       PhaseKind
	SubBatches [][]event.Event // populated iff Kind == PhaseApply
	Position   event.Position  // populated iff Kind == PhaseBarrier
	DDL        event.Event     // populated iff Kind == PhaseDDL
}

// PKResolver returns the primary key column names for t, used by
// hash-partitioning strategies. Mongo collections should resolve to
// []string{"_id"}.
type PKResolver func(t event.TableName) []string

// Parallelizer splits batches into per-worker sub-batches.
type Parallelizer struct {
	strategy Strategy
	n        int
	pk       PKResolver

	// Logger, if non-nil, receives a warning for every RdbMerge reduction
	// that collapses consecutive Inserts on the same key (spec.md §4.3).
	// Left nil by New; callers that want the warning set it directly.
	Logger *logging.Logger

	snapshotRR map[event.TableName]int // Snapshot strategy round-robin cursor
}

// New constructs a Parallelizer. n is the worker count (parallel_size);
// pk resolves primary key columns for hash-based strategies and may be
// nil for strategies that don't need it (Serial, Snapshot).
func New(strategy Strategy, n int, pk PKResolver) *Parallelizer {
	if n <= 0 {
		panic(`parallel: n must be positive`)
	}
	return &Parallelizer{
		strategy:   strategy,
		n:          n,
		pk:         pk,
		snapshotRR: make(map[event.TableName]int),
	}
}

// Partition splits batch into an ordered list of Phases.
func (p *Parallelizer) Partition(batch []event.Event) ([]Phase, error) {
	var phases []Phase
	sub := make([][]event.Event, p.n)

	flush := func() {
		empty := true
		for _, s := range sub {
			if len(s) > 0 {
				empty = false
				break
			}
		}
		if empty {
			return
		}
		phases = append(phases, Phase{Kind: PhaseApply, SubBatches: sub})
		sub = make([][]event.Event, p.n)
	}

	var txnBuf []event.Event // Redis MULTI/EXEC atomic group buffer
	inTxn := false

	var mergeRun []event.Event
	var mergeTable event.TableName
	haveMergeRun := false

	flushMerge := func() error {
		if !haveMergeRun {
			return nil
		}
		reduced, err := p.reduceRdbMerge(mergeTable, mergeRun)
		if err != nil {
			return err
		}
		for _, e := range reduced {
			w, err := p.workerForPK(mergeTable, e)
			if err != nil {
				return err
			}
			sub[w] = append(sub[w], e)
		}
		mergeRun = nil
		haveMergeRun = false
		return nil
	}

	for _, e := range batch {
		if p.strategy == config.ParallelTypeRdbMerge && e.Kind == event.KindRowChange {
			if haveMergeRun && e.Table == mergeTable {
				mergeRun = append(mergeRun, e)
				continue
			}
			if err := flushMerge(); err != nil {
				return nil, err
			}
			mergeTable = e.Table
			mergeRun = []event.Event{e}
			haveMergeRun = true
			continue
		}
		if haveMergeRun {
			if err := flushMerge(); err != nil {
				return nil, err
			}
		}

		switch {
		case e.Kind == event.KindCheckpointMarker:
			flush()
			phases = append(phases, Phase{Kind: PhaseBarrier, Position: e.Position})
			continue

		case e.Kind == event.KindDDL:
			flush()
			phases = append(phases, Phase{Kind: PhaseDDL, DDL: e})
			continue
		}

		if p.strategy == config.ParallelTypeRedis && e.Kind == event.KindRedis {
			switch e.RedisCmd {
			case `MULTI`:
				inTxn = true
				txnBuf = txnBuf[:0]
				continue
			case `EXEC`:
				if inTxn {
					inTxn = false
					if err := p.dispatchRedisGroup(sub, txnBuf); err != nil {
						return nil, err
					}
					txnBuf = nil
					continue
				}
			}
			if inTxn {
				txnBuf = append(txnBuf, e)
				continue
			}
		}

		w, err := p.workerFor(e)
		if err != nil {
			return nil, err
		}
		sub[w] = append(sub[w], e)
	}

	if err := flushMerge(); err != nil {
		return nil, err
	}

	// A MULTI opened in this batch may have its EXEC land in the next one
	// (or never arrive); dispatch whatever it buffered rather than drop it
	// silently once this Partition call's sub-batches are flushed below.
	if inTxn && len(txnBuf) > 0 {
		if err := p.dispatchRedisGroup(sub, txnBuf); err != nil {
			return nil, err
		}
		txnBuf = nil
		inTxn = false
	}

	flush()

	return phases, nil
}

func (p *Parallelizer) dispatchRedisGroup(sub [][]event.Event, group []event.Event) error {
	if len(group) == 0 {
		return nil
	}
	w, err := p.workerFor(group[0])
	if err != nil {
		return err
	}
	sub[w] = append(sub[w], group...)
	return nil
}

// workerFor assigns e to a worker index per the configured strategy,
// for strategies other than RdbMerge (handled separately in Partition)
// and Redis transaction groups (handled in dispatchRedisGroup).
func (p *Parallelizer) workerFor(e event.Event) (int, error) {
	switch p.strategy {
	case config.ParallelTypeSerial:
		return 0, nil

	case config.ParallelTypeSnapshot:
		idx := p.snapshotRR[e.Table]
		p.snapshotRR[e.Table] = (idx + 1) % p.n
		return idx, nil

	case config.ParallelTypeRdbPartition, config.ParallelTypeRdbCheck:
		return p.workerForPK(e.Table, e)

	case config.ParallelTypeTable:
		return int(hashBytes([]byte(e.Table.String())) % uint64(p.n)), nil

	case config.ParallelTypeMongo:
		return p.workerForPK(e.Table, e)

	case config.ParallelTypeRedis:
		return p.workerForRedisKey(e), nil

	default:
		return 0, fmt.Errorf(`parallel: unsupported strategy %q`, p.strategy)
	}
}

func (p *Parallelizer) workerForPK(t event.TableName, e event.Event) (int, error) {
	if p.pk == nil {
		return 0, fmt.Errorf(`parallel: no primary key resolver configured for table %s`, t)
	}
	cols := p.pk(t)
	id, ok := e.Identifier(cols)
	if !ok {
		return 0, fmt.Errorf(`parallel: event for %s missing primary key columns %v`, t, cols)
	}
	return int(hashKey(cols, id) % uint64(p.n)), nil
}

func (p *Parallelizer) workerForRedisKey(e event.Event) int {
	var key []byte
	if len(e.RedisArgs) > 0 {
		key = e.RedisArgs[0]
	} else {
		key = []byte(e.RedisCmd)
	}
	return int(hashBytes(key) % uint64(p.n))
}

// hashKey computes the tie-break hash for a set of primary key columns:
// the kind-tagged value.Value.HashBytes encoding of each column's value,
// joined by a NUL byte (spec.md §4.3 rule iii), digested with xxhash for a
// stable 64-bit partition key.
func hashKey(cols []string, row value.Row) uint64 {
	return hashBytes(keyBytes(cols, row))
}

func keyBytes(cols []string, row value.Row) []byte {
	var buf bytes.Buffer
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(0)
		}
		v, _ := row.Get(c)
		buf.Write(v.HashBytes())
	}
	return buf.Bytes()
}

func hashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// reduceRdbMerge implements RdbMerge's per-key reduction (spec.md §4.3
// "Merge semantics"): a final Delete wins outright; any Insert/Update not
// followed by a Delete collapses to a single Upsert carrying the last
// `after` row, with the Upsert's column set the union of every member
// event's touched columns. Distinct keys are kept in sorted order of their
// encoded key bytes (not first-appearance order) via insertSortFunc-style
// ordered insertion, mirroring sql/export/collection.go's insertSortFunc
// idiom for maintaining a sorted slice without re-sorting the whole run
// each time.
func (p *Parallelizer) reduceRdbMerge(t event.TableName, run []event.Event) ([]event.Event, error) {
	if p.pk == nil {
		return nil, fmt.Errorf(`parallel: no primary key resolver configured for table %s`, t)
	}
	cols := p.pk(t)

	var order []string
	states := make(map[string]*mergeState)

	for _, e := range run {
		id, ok := e.Identifier(cols)
		if !ok {
			return nil, fmt.Errorf(`parallel: event for %s missing primary key columns %v`, t, cols)
		}
		key := mergeKeyString(cols, id)

		st, ok := states[key]
		if !ok {
			st = &mergeState{id: id}
			states[key] = st
			order = insertUniqueSorted(order, key)
		}
		if st.apply(e) && p.Logger != nil {
			p.Logger.Warning().Log(fmt.Sprintf(`rdb_merge: consecutive Insert on table %s key %q collapsed to last-wins Upsert`, t.String(), key))
		}
	}

	out := make([]event.Event, 0, len(order))
	for _, key := range order {
		st := states[key]
		e, ok := st.finalize(t)
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func mergeKeyString(cols []string, row value.Row) string {
	return string(keyBytes(cols, row))
}

func insertUniqueSorted(values []string, v string) []string {
	if i, ok := slices.BinarySearch(values, v); !ok {
		ok = i != len(values)
		values = append(values, v)
		if ok {
			copy(values[i+1:], values[i:])
			values[i] = v
		}
	}
	return values
}

// mergeState accumulates the reduced effect of a run of events sharing
// one primary key within an RdbMerge group.
type mergeState struct {
	id        value.Row // primary key columns of this key
	deleted   bool
	lastRow   *value.Row
	op        event.Op
	sawInsert bool
}

// apply folds e into s, reporting whether e is a second (or later)
// consecutive Insert for this key -- the caller logs a warning for that
// case per spec.md §4.3's merge semantics.
func (s *mergeState) apply(e event.Event) (consecutiveInsert bool) {
	switch e.Op {
	case event.OpDelete:
		s.deleted = true
		s.lastRow = nil
		s.op = event.OpDelete
		s.sawInsert = false
	case event.OpInsert, event.OpUpdate:
		if e.Op == event.OpInsert {
			consecutiveInsert = s.sawInsert
			s.sawInsert = true
		}
		s.deleted = false
		if e.After != nil {
			merged := *e.After
			if s.lastRow != nil {
				merged = mergeRows(*s.lastRow, *e.After)
			}
			s.lastRow = &merged
		}
		s.op = event.OpUpdate
	}
	return consecutiveInsert
}

// mergeRows unions the column set of prior and next, with next's values
// taking precedence for overlapping columns -- the "column set of an
// Upsert is the union of columns touched by any member event" rule.
func mergeRows(prior, next value.Row) value.Row {
	cols := value.Union(prior, next)
	values := make([]value.Value, len(cols))
	for i, c := range cols {
		if v, ok := next.Get(c); ok {
			values[i] = v
			continue
		}
		v, _ := prior.Get(c)
		values[i] = v
	}
	return value.NewRow(cols, values)
}

func (s *mergeState) finalize(t event.TableName) (event.Event, bool) {
	if s.deleted {
		id := s.id
		return event.RowChange(t, event.OpDelete, &id, nil, time.Time{}, event.Position{}), true
	}
	if s.lastRow == nil {
		return event.Event{}, false
	}
	return event.RowChange(t, event.OpUpdate, nil, s.lastRow, time.Time{}, event.Position{}), true
}
