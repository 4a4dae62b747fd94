package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoint records in a Redis hash (one field per
// task id), so a Redis-sink pipeline's checkpoint store can live in the
// same cluster it's already replicating into, rather than requiring a
// second stateful dependency.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a RedisStore. key is the Redis hash key all task
// records are stored under (HSET key taskID recordJSON).
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == `` {
		key = `ape_dts:checkpoints`
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context, taskID string) (Record, bool, error) {
	b, err := r.client.HGet(ctx, r.key, taskID).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf(`checkpoint: redis hget %s: %w`, taskID, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, fmt.Errorf(`checkpoint: decode %s: %w`, taskID, err)
	}
	return rec, true, nil
}

func (r *RedisStore) Save(ctx context.Context, taskID string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf(`checkpoint: encode %s: %w`, taskID, err)
	}
	if err := r.client.HSet(ctx, r.key, taskID, b).Err(); err != nil {
		return fmt.Errorf(`checkpoint: redis hset %s: %w`, taskID, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
