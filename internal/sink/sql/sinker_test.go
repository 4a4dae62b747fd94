package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/value"
	"github.com/stretchr/testify/require"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeExecer struct {
	execs  []string
	args   [][]any
	failOn int
	closed bool
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	f.execs = append(f.execs, query)
	f.args = append(f.args, args)
	if f.failOn > 0 && len(f.execs) == f.failOn {
		return nil, errors.New(`connection reset`)
	}
	return fakeResult{}, nil
}

func (f *fakeExecer) Close() error {
	f.closed = true
	return nil
}

func pkResolver(t *testing.T) PKResolver {
	return func(table event.TableName) []string { return []string{`id`} }
}

func TestSinker_Sink_insertBuildsUpsert(t *testing.T) {
	exec := &fakeExecer{}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	after := value.NewRow([]string{`id`, `name`}, []value.Value{value.Int64(1), value.String(`alice`)})
	e := event.RowChange(usersTable, event.OpInsert, nil, &after, time.Unix(0, 0), event.Position{})

	err := s.Sink(context.Background(), []event.Event{e}, false)
	require.NoError(t, err)
	require.Len(t, exec.execs, 1)
	require.Contains(t, exec.execs[0], `ON DUPLICATE KEY UPDATE`)
}

func TestSinker_Sink_deleteUsesBeforeForPK(t *testing.T) {
	exec := &fakeExecer{}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	before := value.NewRow([]string{`id`}, []value.Value{value.Int64(5)})
	e := event.RowChange(usersTable, event.OpDelete, &before, nil, time.Unix(0, 0), event.Position{})

	err := s.Sink(context.Background(), []event.Event{e}, false)
	require.NoError(t, err)
	require.Len(t, exec.execs, 1)
	require.Contains(t, exec.execs[0], `DELETE FROM`)
	require.Equal(t, []any{int64(5)}, exec.args[0])
}

func TestSinker_Sink_ddlPassesThroughStatement(t *testing.T) {
	exec := &fakeExecer{}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	e := event.DDL(`db1`, `ALTER TABLE users ADD COLUMN email VARCHAR(255)`, time.Unix(0, 0), event.Position{})

	err := s.Sink(context.Background(), []event.Event{e}, false)
	require.NoError(t, err)
	require.Equal(t, []string{`ALTER TABLE users ADD COLUMN email VARCHAR(255)`}, exec.execs)
}

func TestSinker_Sink_skipsControlEvents(t *testing.T) {
	exec := &fakeExecer{}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	err := s.Sink(context.Background(), []event.Event{
		event.Heartbeat(event.Position{}, time.Now()),
		event.CheckpointMarker(event.Position{}),
	}, false)
	require.NoError(t, err)
	require.Empty(t, exec.execs)
}

func TestSinker_Sink_execErrorWrapsWithContext(t *testing.T) {
	exec := &fakeExecer{failOn: 1}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	after := value.NewRow([]string{`id`}, []value.Value{value.Int64(1)})
	e := event.RowChange(usersTable, event.OpInsert, nil, &after, time.Unix(0, 0), event.Position{})

	err := s.Sink(context.Background(), []event.Event{e}, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), `sink/sql`)
}

func TestSinker_Close_closesUnderlyingExecer(t *testing.T) {
	exec := &fakeExecer{}
	s := NewSinker(exec, MySQLDialect{}, pkResolver(t))

	require.NoError(t, s.Close())
	require.True(t, exec.closed)
}
