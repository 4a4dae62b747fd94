// Package checkpoint implements the pluggable checkpoint store (spec.md
// §4.5, §6): a small overwrite-semantics record keyed by task id, persisted
// after every barrier or every checkpoint_interval_ms, whichever first.
package checkpoint

import (
	"context"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
)

// Record is the checkpoint store layout from spec.md §6: "{ db_type,
// position_bytes, commit_ts, updated_at }".
type Record struct {
	DbType        string
	PositionBytes []byte
	CommitTS      time.Time
	UpdatedAt     time.Time
}

// Position decodes PositionBytes back into an event.Position.
func (r Record) Position() (event.Position, error) {
	var p event.Position
	if len(r.PositionBytes) == 0 {
		return p, nil
	}
	err := p.UnmarshalBinary(r.PositionBytes)
	return p, err
}

// NewRecord builds a Record from a committed Position, ready for Save.
func NewRecord(dbType string, pos event.Position, commitTS time.Time) (Record, error) {
	b, err := pos.MarshalBinary()
	if err != nil {
		return Record{}, err
	}
	return Record{DbType: dbType, PositionBytes: b, CommitTS: commitTS, UpdatedAt: commitTS}, nil
}

// Store is the pluggable persistence port the Orchestrator drives;
// access is serialized by the Orchestrator itself (spec.md §5: "Checkpoint
// store access is serialized by the Orchestrator"), so implementations need
// not be safe for concurrent Save calls, only for a concurrent Load
// (typically issued once, at startup, before the Orchestrator begins
// serializing).
type Store interface {
	// Load returns the last-saved Record for taskID, or ok=false if none
	// has been saved yet (a fresh task starts from the beginning).
	Load(ctx context.Context, taskID string) (rec Record, ok bool, err error)

	// Save overwrites the Record for taskID. No history is kept (spec.md
	// §6: "Overwrite semantics; no history required").
	Save(ctx context.Context, taskID string, rec Record) error

	// Close releases any held resources.
	Close() error
}
