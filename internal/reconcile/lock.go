package reconcile

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lock serializes materialization attempts for a single payment intent
// across gateway instances. It is an optimization only: the database guard
// is what actually enforces exactly-once, the lock just keeps the loser from
// doing wasted work.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLock(client *redis.Client) *Lock {
	return &Lock{Client: client, TTL: 30 * time.Second}
}

func lockKey(intentID string) string {
	return "intent_lock:" + intentID
}

func (l *Lock) Acquire(ctx context.Context, intentID string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(intentID), "1", l.TTL).Result()
}

func (l *Lock) Release(ctx context.Context, intentID string) error {
	_, err := l.Client.Del(ctx, lockKey(intentID)).Result()
	return err
}
