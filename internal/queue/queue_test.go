package queue

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
	"github.com/stretchr/testify/require"
)

func TestQueue_dequeueFlushesOnBatchSize(t *testing.T) {
	q := New(&Config{BufferSize: 16, BatchSize: 2, FlushInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now())))
	require.NoError(t, q.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now())))

	done := make(chan struct{})
	var batch []event.Event
	var err error
	go func() {
		batch, err = q.Dequeue(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(`timed out waiting for dequeue`)
	}

	require.NoError(t, err)
	require.Len(t, batch, 2)
}

func TestQueue_dequeueFlushesOnInterval(t *testing.T) {
	q := New(&Config{BufferSize: 16, BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now())))

	batch, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestQueue_closeSignalsEOFAfterDrain(t *testing.T) {
	q := New(&Config{BufferSize: 16, BatchSize: 100, FlushInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now())))
	q.Close()

	batch, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestQueue_enqueueRejectedAfterClose(t *testing.T) {
	q := New(nil)
	q.Close()

	err := q.Enqueue(context.Background(), event.Heartbeat(event.Position{}, time.Now()))
	require.Error(t, err)
}

func TestQueue_enqueueRespectsContextCancel(t *testing.T) {
	q := New(&Config{BufferSize: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Enqueue(ctx, event.Heartbeat(event.Position{}, time.Now()))
	require.ErrorIs(t, err, context.Canceled)
}
