package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/programlife555/ape-dts/internal/checkpoint"
	"github.com/programlife555/ape-dts/internal/config"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/extract"
	"github.com/programlife555/ape-dts/internal/filter"
	"github.com/programlife555/ape-dts/internal/logging"
	"github.com/programlife555/ape-dts/internal/monitor"
	"github.com/programlife555/ape-dts/internal/parallel"
	"github.com/programlife555/ape-dts/internal/queue"
	"github.com/programlife555/ape-dts/internal/sink"
	"github.com/programlife555/ape-dts/internal/value"
	"github.com/stretchr/testify/require"
)

var usersTable = event.TableName{Schema: `db`, Table: `users`}

func pkCol(event.TableName) []string { return []string{`id`} }

// fakeExtractor emits a fixed event sequence into the sink, then closes the
// queue, mirroring a snapshot-style Extractor that exhausts its source.
type fakeExtractor struct {
	events    []event.Event
	queue     *queue.Queue
	resumed   event.Position
	resumedOK bool
	startErr  error
}

func (f *fakeExtractor) ResumeFrom(pos event.Position) error {
	f.resumed = pos
	f.resumedOK = true
	return nil
}

func (f *fakeExtractor) Start(ctx context.Context, sink extract.EventSink) error {
	if f.startErr != nil {
		return f.startErr
	}
	for _, e := range f.events {
		if err := sink.Enqueue(ctx, e); err != nil {
			return err
		}
	}
	f.queue.Close()
	return nil
}

func (f *fakeExtractor) Close() error { return nil }

type recordingSinker struct {
	mu      sync.Mutex
	seen    []event.Event
	failErr error
}

func (s *recordingSinker) Sink(ctx context.Context, batch []event.Event, isMerged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.seen = append(s.seen, batch...)
	return nil
}

func (s *recordingSinker) snapshot() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.seen...)
}

func (s *recordingSinker) Close() error { return nil }

func newTestTask(sinker sink.Sinker, policy config.ConflictPolicy) (*Task, *queue.Queue) {
	q := queue.New(nil)
	router := filter.New(filter.Config{})
	par := parallel.New(config.ParallelTypeSerial, 1, pkCol)
	pool := sink.NewPool([]sink.Sinker{sinker}, policy, nil, nil)
	store := checkpoint.NewMemoryStore()
	mon := monitor.New()
	logger := logging.NewStderr(logging.LevelError)

	tk := &Task{
		TaskID:             `t1`,
		DbType:             `mysql`,
		Queue:              q,
		Router:             router,
		Parallelizer:       par,
		Pool:               pool,
		Checkpoints:        store,
		Monitor:            mon,
		Logger:             logger,
		CheckpointInterval: time.Hour,
		ShutdownTimeout:    time.Second,
	}
	return tk, q
}

func rowEvent(op event.Op, table event.TableName, id int64) event.Event {
	after := value.NewRow([]string{`id`}, []value.Value{value.Int64(id)})
	pos := event.BinlogPosition(`bin.1`, uint64(id), ``)
	return event.RowChange(table, op, nil, &after, time.Now(), pos)
}

func TestTask_Run_cleanEOS_flushesFinalCheckpoint(t *testing.T) {
	sinker := &recordingSinker{}
	tk, q := newTestTask(sinker, config.ConflictPolicyInterrupt)

	pos := event.BinlogPosition(`bin.1`, 42, ``)
	events := []event.Event{
		rowEvent(event.OpInsert, usersTable, 1),
		event.CheckpointMarker(pos),
	}
	extractor := &fakeExtractor{events: events, queue: q}
	tk.Extractor = extractor

	err := tk.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, ExitCode(err))

	require.Len(t, sinker.snapshot(), 1)

	rec, ok, err := tk.Checkpoints.Load(context.Background(), `t1`)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := rec.Position()
	require.NoError(t, err)
	require.Equal(t, pos, got)
}

func TestTask_Run_resumesFromSavedCheckpoint(t *testing.T) {
	sinker := &recordingSinker{}
	tk, q := newTestTask(sinker, config.ConflictPolicyInterrupt)

	saved := event.BinlogPosition(`bin.1`, 7, ``)
	rec, err := checkpoint.NewRecord(`mysql`, saved, time.Now())
	require.NoError(t, err)
	require.NoError(t, tk.Checkpoints.Save(context.Background(), `t1`, rec))

	extractor := &fakeExtractor{queue: q}
	tk.Extractor = extractor

	require.NoError(t, tk.Run(context.Background()))
	require.True(t, extractor.resumedOK)
	require.Equal(t, saved, extractor.resumed)
}

func TestTask_Run_interruptPolicyPropagatesSinkerError(t *testing.T) {
	sinker := &recordingSinker{failErr: errors.New(`write failed`)}
	tk, q := newTestTask(sinker, config.ConflictPolicyInterrupt)

	events := []event.Event{rowEvent(event.OpInsert, usersTable, 1)}
	extractor := &fakeExtractor{events: events, queue: q}
	tk.Extractor = extractor

	err := tk.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, ExitCode(err))
}

func TestTask_Run_ignorePolicyRecordsConflictAndContinues(t *testing.T) {
	sinker := &recordingSinker{failErr: errors.New(`write failed`)}
	tk, q := newTestTask(sinker, config.ConflictPolicyIgnore)

	events := []event.Event{rowEvent(event.OpInsert, usersTable, 1)}
	extractor := &fakeExtractor{events: events, queue: q}
	tk.Extractor = extractor

	err := tk.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, tk.Monitor.Snapshot().Conflicts)
}

func TestTask_Run_ddlPhaseAppliedThroughWorkerZero(t *testing.T) {
	sinker := &recordingSinker{}
	tk, q := newTestTask(sinker, config.ConflictPolicyInterrupt)

	ddl := event.DDL(usersTable.Schema, `ALTER TABLE users ADD COLUMN age INT`, time.Now(), event.BinlogPosition(`bin.1`, 99, ``))
	extractor := &fakeExtractor{events: []event.Event{ddl}, queue: q}
	tk.Extractor = extractor

	require.NoError(t, tk.Run(context.Background()))
	seen := sinker.snapshot()
	require.Len(t, seen, 1)
	require.Equal(t, event.KindDDL, seen[0].Kind)
}

func TestTask_Run_checkpointLoadErrorMapsToExitCode1(t *testing.T) {
	sinker := &recordingSinker{}
	tk, q := newTestTask(sinker, config.ConflictPolicyInterrupt)
	tk.Checkpoints = failingStore{err: errors.New(`disk full`)}

	extractor := &fakeExtractor{queue: q}
	tk.Extractor = extractor

	err := tk.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, ExitCode(err))
}

type failingStore struct{ err error }

func (f failingStore) Load(ctx context.Context, taskID string) (checkpoint.Record, bool, error) {
	return checkpoint.Record{}, false, f.err
}

func (f failingStore) Save(ctx context.Context, taskID string, rec checkpoint.Record) error {
	return f.err
}

func (f failingStore) Close() error { return nil }
