package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1], so a
// holder whose lease ran out cannot drop the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore is the lease surface: create-if-absent and owner-checked delete.
type LockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// ReleaseOwned deletes key when its value equals owner, atomically on the
// server. It reports whether the key was removed.
func (c *Client) ReleaseOwned(ctx context.Context, key, owner string) (bool, error) {
	if c.cmd == nil {
		return false, errNoConnection
	}
	n, err := releaseScript.Run(ctx, c.cmd, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Lock is an owner-tagged SET NX lease. One Lock guards one critical
// section at a time.
type Lock struct {
	store LockStore
	key   string
	ttl   time.Duration
	owner string
}

func NewLock(store LockStore, key string, ttl time.Duration) (*Lock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis store required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}
	return &Lock{store: store, key: key, ttl: ttl}, nil
}

func (l *Lock) Key() string { return l.key }

// TTL is the lease length; work done under the lock should finish inside it.
func (l *Lock) TTL() time.Duration { return l.ttl }

func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release drops the lease if this Lock still owns it. A lease that expired
// and was taken by someone else is left alone.
func (l *Lock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.ReleaseOwned(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
