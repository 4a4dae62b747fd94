package event

import (
	"time"

	"github.com/programlife555/ape-dts/internal/value"
)

// Op enumerates the row-level operations a RowChange may carry.
type Op uint8

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return `insert`
	case OpUpdate:
		return `update`
	case OpDelete:
		return `delete`
	default:
		return `unknown`
	}
}

// Kind tags the variant carried by an Event. Exactly one variant is
// populated per Event, per spec.md §3.
type Kind uint8

const (
	KindRowChange Kind = iota
	KindDDL
	KindHeartbeat
	KindRedis
	KindFileBatch
	KindCheckpointMarker
)

func (k Kind) String() string {
	switch k {
	case KindRowChange:
		return `row_change`
	case KindDDL:
		return `ddl`
	case KindHeartbeat:
		return `heartbeat`
	case KindRedis:
		return `redis`
	case KindFileBatch:
		return `file_batch`
	case KindCheckpointMarker:
		return `checkpoint_marker`
	default:
		return `unknown`
	}
}

// Event is a tagged variant representing one change record, or one of the
// engine's synthetic control events (Heartbeat, CheckpointMarker). Every
// variant carries Position and (where meaningful) CommitTS, honoring
// Invariant 1/2 of spec.md §3 (commit_ts monotone non-decreasing, positions
// strictly monotone, within one extractor's output).
type Event struct {
	Kind     Kind
	Position Position
	CommitTS time.Time

	// RowChange fields.
	Table  TableName
	Op     Op
	Before *value.Row // set iff the source provides pre-images for Update/Delete
	After  *value.Row // set for Insert/Update; nil for Delete

	// DDL fields.
	DDLStatement string

	// Heartbeat fields.
	WallClock time.Time

	// Redis fields.
	RedisDB   int
	RedisCmd  string
	RedisArgs [][]byte

	// FileBatch fields (analytical sink staged-file reference).
	FileURI       string
	FileRowCount  int64
	FileByteSize  int64
	FileInsertOnly bool
}

// RowChange constructs an Insert/Update/Delete event.
func RowChange(table TableName, op Op, before, after *value.Row, commitTS time.Time, pos Position) Event {
	return Event{
		Kind:     KindRowChange,
		Position: pos,
		CommitTS: commitTS,
		Table:    table,
		Op:       op,
		Before:   before,
		After:    after,
	}
}

// DDL constructs a schema-change event.
func DDL(schema, statement string, commitTS time.Time, pos Position) Event {
	return Event{
		Kind:         KindDDL,
		Position:     pos,
		CommitTS:     commitTS,
		Table:        TableName{Schema: schema},
		DDLStatement: statement,
	}
}

// Heartbeat constructs a synthetic liveness event.
func Heartbeat(pos Position, wallClock time.Time) Event {
	return Event{Kind: KindHeartbeat, Position: pos, WallClock: wallClock}
}

// RedisCommand constructs an opaque Redis command event.
func RedisCommand(db int, cmd string, args [][]byte, pos Position) Event {
	return Event{Kind: KindRedis, Position: pos, RedisDB: db, RedisCmd: cmd, RedisArgs: args}
}

// FileBatchEvent constructs a staged-file reference event for analytical sinks.
func FileBatchEvent(table TableName, uri string, rowCount, byteSize int64, insertOnly bool) Event {
	return Event{
		Kind:           KindFileBatch,
		Table:          table,
		FileURI:        uri,
		FileRowCount:   rowCount,
		FileByteSize:   byteSize,
		FileInsertOnly: insertOnly,
	}
}

// CheckpointMarker constructs a commit-barrier event (spec.md §4.1, §4.3
// rule i): no sub-batch produced by the Parallelizer may straddle one.
func CheckpointMarker(pos Position) Event {
	return Event{Kind: KindCheckpointMarker, Position: pos}
}

// Identifier returns the logical identifier for a RowChange: the primary
// key columns are found in After if available, otherwise Before. Per
// spec.md §3 Invariant 3, Before is populated only when the source provides
// pre-images; callers needing the row identity for Update/Delete when
// Before is nil must treat After's primary key as authoritative.
func (e Event) Identifier(primaryKeyColumns []string) (value.Row, bool) {
	var src *value.Row
	switch {
	case e.After != nil:
		src = e.After
	case e.Before != nil:
		src = e.Before
	default:
		return value.Row{}, false
	}
	cols := make([]string, 0, len(primaryKeyColumns))
	vals := make([]value.Value, 0, len(primaryKeyColumns))
	for _, c := range primaryKeyColumns {
		v, ok := src.Get(c)
		if !ok {
			return value.Row{}, false
		}
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return value.NewRow(cols, vals), true
}

// IsControl reports whether the event is a synthetic control event that
// must always pass filtering undropped (spec.md §4.6: "heartbeats and
// checkpoint markers which always pass").
func (e Event) IsControl() bool {
	return e.Kind == KindHeartbeat || e.Kind == KindCheckpointMarker
}
