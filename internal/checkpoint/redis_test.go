package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, `test:checkpoints`)
}

func TestRedisStore_loadMissingReturnsNotOK(t *testing.T) {
	s := newTestRedisStore(t)
	_, ok, err := s.Load(context.Background(), `task-1`)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_saveThenLoad(t *testing.T) {
	s := newTestRedisStore(t)

	pos := event.RedisPosition(`repl-a`, 99)
	rec, err := NewRecord(`redis`, pos, time.Unix(3, 0).UTC())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), `task-1`, rec))

	got, ok, err := s.Load(context.Background(), `task-1`)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestRedisStore_defaultKeyWhenEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, ``)
	require.Equal(t, `ape_dts:checkpoints`, s.key)
}
