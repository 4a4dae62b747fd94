package snapshot

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/extract"
	"github.com/stretchr/testify/require"
)

var usersTable = event.TableName{Schema: `db`, Table: `users`}

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Enqueue(ctx context.Context, e event.Event) error {
	s.events = append(s.events, e)
	return nil
}

func TestExtractor_Start_singlePageEmitsRowsThenCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{`id`, `name`}).
		AddRow(int64(1), `alice`).
		AddRow(int64(2), `bob`)
	mock.ExpectQuery(`SELECT \* FROM .*users.* ORDER BY id LIMIT 10`).WillReturnRows(rows)

	spec := TableSpec{Table: usersTable, PKCols: []string{`id`}}
	ext := New(db, []TableSpec{spec}, 10, time.Hour)

	sink := &recordingSink{}
	require.NoError(t, ext.Start(context.Background(), sink))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, sink.events, 3)
	require.Equal(t, event.KindRowChange, sink.events[0].Kind)
	require.Equal(t, event.OpInsert, sink.events[0].Op)
	require.Equal(t, event.KindCheckpointMarker, sink.events[2].Kind)
}

func TestExtractor_Start_pagesUntilShortPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	page1 := sqlmock.NewRows([]string{`id`}).AddRow(int64(1)).AddRow(int64(2))
	mock.ExpectQuery(`SELECT \* FROM .*users.* ORDER BY id LIMIT 2`).WillReturnRows(page1)

	page2 := sqlmock.NewRows([]string{`id`}).AddRow(int64(3))
	mock.ExpectQuery(`SELECT \* FROM .*users.* WHERE \(id\) > \(\?\) ORDER BY id LIMIT 2`).
		WithArgs(int64(2)).WillReturnRows(page2)

	spec := TableSpec{Table: usersTable, PKCols: []string{`id`}}
	ext := New(db, []TableSpec{spec}, 2, time.Hour)

	sink := &recordingSink{}
	require.NoError(t, ext.Start(context.Background(), sink))
	require.NoError(t, mock.ExpectationsWereMet())

	var rowEvents int
	for _, e := range sink.events {
		if e.Kind == event.KindRowChange {
			rowEvents++
		}
	}
	require.Equal(t, 3, rowEvents)
}

func TestExtractor_Start_emptyTableEmitsOnlyCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM .*users.* ORDER BY id LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{`id`}))

	spec := TableSpec{Table: usersTable, PKCols: []string{`id`}}
	ext := New(db, []TableSpec{spec}, 10, time.Hour)

	sink := &recordingSink{}
	require.NoError(t, ext.Start(context.Background(), sink))

	require.Len(t, sink.events, 1)
	require.Equal(t, event.KindCheckpointMarker, sink.events[0].Kind)
}

func TestExtractor_ResumeFrom_isNoOp(t *testing.T) {
	ext := New(nil, nil, 0, 0)
	require.NoError(t, ext.ResumeFrom(event.BinlogPosition(`bin.1`, 5, ``)))
}

func TestExtractor_Start_queryErrorWrappedAsConnectionLost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(context.DeadlineExceeded)

	spec := TableSpec{Table: usersTable, PKCols: []string{`id`}}
	ext := New(db, []TableSpec{spec}, 10, time.Hour)

	err = ext.Start(context.Background(), &recordingSink{})
	require.Error(t, err)
	require.ErrorIs(t, err, extract.ErrConnectionLost)
}
