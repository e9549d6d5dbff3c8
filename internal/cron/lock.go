package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

const defaultLockTTL = time.Hour

// Lock coordinates exclusive cron cycles across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewRedisLock builds the cycle lock on key. The TTL should outlive one
// cycle so a crashed replica cannot block the next one for long.
func NewRedisLock(store redis.LockStore, key string, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	lock, err := redis.NewLock(store, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
