package sql

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/programlife555/ape-dts/internal/event"
)

// Result mirrors database/sql.Result, kept as its own interface (rather
// than importing sql.Result directly into Writer's constraint) so Writer
// isn't pinned to database/sql, following sql/export/writer.go's
// Writer/databaseWriter[R Result]/WriterImpl[C,R] generic port shape.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// databaseExecer is the narrow port a Sinker needs from a connection pool:
// only ExecContext, since this Sinker never reads rows back.
type databaseExecer[R Result] interface {
	ExecContext(ctx context.Context, query string, args ...any) (R, error)
}

// Writer adapts a concrete connection type C (typically *sql.DB) down to
// the databaseExecer port, erasing its Result type to the Result
// interface so callers needn't know R.
type Writer[C databaseExecer[R], R Result] struct {
	DB C
}

var _ interface {
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
} = (*Writer[*sql.DB, sql.Result])(nil)

func (w *Writer[C, R]) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	return w.DB.ExecContext(ctx, query, args...)
}

func (w *Writer[C, R]) Close() error {
	if c, ok := any(w.DB).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PKResolver returns the primary-key columns for a table, so the Sinker can
// build Upsert/Delete statements without re-deriving table metadata.
type PKResolver func(t event.TableName) []string

// execer is the interface the Sinker depends on; *Writer[*sql.DB, sql.Result]
// satisfies it, or a test double can.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	Close() error
}

// Sinker implements internal/sink.Sinker for SQL-family targets (MySQL,
// PostgreSQL), applying each RowChange/DDL event in batch via one
// ExecContext call per event, through Dialect-built Snippets.
type Sinker struct {
	db      execer
	dialect Dialect
	pk      PKResolver
}

// NewSinker builds a Sinker. db is typically &Writer[*sql.DB, sql.Result]{DB: conn}.
func NewSinker(db execer, dialect Dialect, pk PKResolver) *Sinker {
	return &Sinker{db: db, dialect: dialect, pk: pk}
}

// Sink applies batch in order. isMerged batches (RdbMerge output) carry at
// most one event per primary key, already idempotent by construction
// (Upsert/Delete overwrite by key), so no special handling is required here
// beyond applying them in the given order.
func (s *Sinker) Sink(ctx context.Context, batch []event.Event, isMerged bool) error {
	for _, e := range batch {
		snippet, ok := s.buildSnippet(e)
		if !ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, snippet.SQL, snippet.Args...); err != nil {
			return fmt.Errorf(`sink/sql: exec failed for %s on %s: %w`, e.Op, e.Table, err)
		}
	}
	return nil
}

func (s *Sinker) buildSnippet(e event.Event) (Snippet, bool) {
	switch e.Kind {
	case event.KindRowChange:
		return s.buildRowChange(e), true
	case event.KindDDL:
		return s.dialect.DDL(e.DDLStatement), true
	default:
		// Heartbeat/CheckpointMarker/Redis/FileBatch carry no SQL DML; the
		// Orchestrator handles checkpoint persistence separately.
		return Snippet{}, false
	}
}

func (s *Sinker) buildRowChange(e event.Event) Snippet {
	pkCols := s.pk(e.Table)

	if e.Op == event.OpDelete {
		pkRow := e.Before
		if pkRow == nil {
			pkRow = e.After
		}
		pkVals := make([]any, len(pkCols))
		for i, c := range pkCols {
			if v, ok := pkRow.Get(c); ok {
				pkVals[i] = v.Native()
			}
		}
		return s.dialect.Delete(e.Table, pkCols, pkVals)
	}

	columns := e.After.Columns()
	values := make([]any, len(columns))
	for i, c := range columns {
		if v, ok := e.After.Get(c); ok {
			values[i] = v.Native()
		}
	}
	return s.dialect.Upsert(e.Table, columns, pkCols, values)
}

// Close releases the underlying connection.
func (s *Sinker) Close() error {
	return s.db.Close()
}
