package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultQueueKey = "kaakazini:notifications"

// RedisQueue is a FIFO list: producers LPUSH, workers BRPOP.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, b).Err()
}

// Pop blocks up to timeout. A nil event with nil error means the queue was empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Event, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, nil
	}
	var ev Event
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
