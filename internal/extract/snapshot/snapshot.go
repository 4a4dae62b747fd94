// Package snapshot implements the Snapshot/Scan Extractor specialization
// (spec.md §4.2, config.ExtractTypeSnapshot): a one-shot, keyset-paginated
// full-table scan over a database/sql connection, emitting RowChange
// Insert events in primary-key order. Grounded on the same narrow-port
// generic shape internal/sink/sql.Writer uses to erase a connection pool
// down to exactly the method it needs (here QueryContext instead of
// ExecContext).
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/extract"
	"github.com/programlife555/ape-dts/internal/value"
)

// Queryer is the narrow read port a snapshot scan needs from a connection
// pool. *sql.DB satisfies it directly.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableSpec names one table to scan and the primary-key columns that
// order its keyset pagination.
type TableSpec struct {
	Table   event.TableName
	PKCols  []string
	Columns []string // empty means "select *"
}

var _ extract.Extractor = (*Extractor)(nil)

// Extractor is the Snapshot/Scan Extractor. The zero value is not usable;
// use New.
type Extractor struct {
	db                Queryer
	tables            []TableSpec
	batchSize         int
	heartbeatInterval time.Duration
}

// New builds an Extractor scanning tables in order. batchSize bounds rows
// fetched per page (config.ExtractorSection.BatchSize); heartbeatInterval
// is config.ExtractorSection.HeartbeatInterval().
func New(db Queryer, tables []TableSpec, batchSize int, heartbeatInterval time.Duration) *Extractor {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = time.Second
	}
	return &Extractor{db: db, tables: tables, batchSize: batchSize, heartbeatInterval: heartbeatInterval}
}

// ResumeFrom is a no-op: a snapshot scan has no durable mid-scan cursor
// (extract.Extractor.ResumeFrom: "implementations that ignore the resume
// position... may treat this as a no-op") and always rescans each configured table
// from its start.
func (e *Extractor) ResumeFrom(event.Position) error { return nil }

// Start scans every configured table to completion, in order, emitting a
// Heartbeat at least once per heartbeatInterval, then a final
// CheckpointMarker once every table is fully drained.
func (e *Extractor) Start(ctx context.Context, sink extract.EventSink) error {
	lastBeat := time.Now()
	beat := func() error {
		if time.Since(lastBeat) < e.heartbeatInterval {
			return nil
		}
		lastBeat = time.Now()
		return sink.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now()))
	}

	for _, spec := range e.tables {
		if err := e.scanTable(ctx, sink, spec, beat); err != nil {
			return err
		}
	}

	return sink.Enqueue(ctx, event.CheckpointMarker(event.Position{}))
}

func (e *Extractor) scanTable(ctx context.Context, sink extract.EventSink, spec TableSpec, beat func() error) error {
	var cursor []any // last page's trailing PK values; nil for the first page

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, cols, err := e.queryPage(ctx, spec, cursor)
		if err != nil {
			return extract.ConnectionLost(err)
		}

		n, last, err := e.emitPage(ctx, sink, spec, rows, cols)
		rows.Close()
		if err != nil {
			return err
		}
		if err := beat(); err != nil {
			return err
		}
		if n < e.batchSize {
			return nil
		}
		cursor = last
	}
}

func (e *Extractor) queryPage(ctx context.Context, spec TableSpec, cursor []any) (*sql.Rows, []string, error) {
	cols := spec.Columns
	selectList := `*`
	if len(cols) > 0 {
		selectList = strings.Join(cols, `, `)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, selectList, qualify(spec.Table))
	args := make([]any, 0, len(spec.PKCols))
	if cursor != nil {
		query += fmt.Sprintf(` WHERE (%s) > (%s)`, strings.Join(spec.PKCols, `, `), placeholders(len(spec.PKCols)))
		args = append(args, cursor...)
	}
	query += fmt.Sprintf(` ORDER BY %s LIMIT %d`, strings.Join(spec.PKCols, `, `), e.batchSize)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	resultCols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, nil, err
	}
	return rows, resultCols, nil
}

// emitPage scans every row of rows into a RowChange Insert event, and
// returns the row count and the trailing row's primary-key values (for the
// next page's keyset cursor).
func (e *Extractor) emitPage(ctx context.Context, sink extract.EventSink, spec TableSpec, rows *sql.Rows, cols []string) (int, []any, error) {
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	var n int
	var lastPK []any

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, nil, err
		}

		values := make([]value.Value, len(cols))
		for i, raw := range dest {
			values[i] = value.FromDriverValue(raw)
		}
		row := value.NewRow(cols, values)

		e := event.RowChange(spec.Table, event.OpInsert, nil, &row, time.Now(), event.Position{})
		if err := sink.Enqueue(ctx, e); err != nil {
			return n, nil, err
		}

		lastPK = pkValues(cols, dest, spec.PKCols)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, nil, err
	}
	return n, lastPK, nil
}

func pkValues(cols []string, dest []any, pkCols []string) []any {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	out := make([]any, len(pkCols))
	for i, c := range pkCols {
		if j, ok := idx[c]; ok {
			out[i] = dest[j]
		}
	}
	return out
}

func qualify(t event.TableName) string {
	if t.Schema == `` {
		return fmt.Sprintf("`%s`", t.Table)
	}
	return fmt.Sprintf("`%s`.`%s`", t.Schema, t.Table)
}

func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = `?`
	}
	return strings.Join(ps, `, `)
}

// Close is a no-op: Extractor does not own the connection pool (the
// caller that built the Queryer also owns its lifecycle, consistent with
// internal/sink/sql.Sinker not closing a shared pool it didn't open).
func (e *Extractor) Close() error { return nil }
