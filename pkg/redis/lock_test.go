package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCmdable()}
	key := client.LockKey("import", "42")

	first, err := NewLock(client, key, time.Minute)
	require.NoError(t, err)
	second, err := NewLock(client, key, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "lock must be exclusive")

	// a non-owner release is a no-op
	require.NoError(t, second.Release(ctx))
	_, err = client.Get(ctx, key)
	require.NoError(t, err)

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockDoesNotReleaseForeignOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{cmd: mock}
	key := client.LockKey("import", "1")

	lock, err := NewLock(client, key, time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and someone else took it
	require.NoError(t, client.Set(ctx, key, "other-owner", time.Minute))
	gets := mock.getCalls
	require.NoError(t, lock.Release(ctx))

	require.Equal(t, 1, mock.evalCalls, "release is one server-side compare-and-delete")
	require.Equal(t, gets, mock.getCalls, "release must not read then delete")
	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "other-owner", value)
}

// handoverStore hands the lease to another owner at the moment release
// reaches the store, the window a read-then-delete release loses.
type handoverStore struct {
	value string
}

func (h *handoverStore) SetNX(_ context.Context, _ string, value any, _ time.Duration) (bool, error) {
	if h.value != "" {
		return false, nil
	}
	h.value = value.(string)
	return true, nil
}

func (h *handoverStore) ReleaseOwned(_ context.Context, _ string, owner string) (bool, error) {
	h.value = "next-owner"
	if h.value != owner {
		return false, nil
	}
	h.value = ""
	return true, nil
}

func TestLockReleaseKeepsLeaseTakenDuringRelease(t *testing.T) {
	ctx := context.Background()
	store := &handoverStore{}
	lock, err := NewLock(store, "proc:lock:import:7", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "next-owner", store.value)

	// a second release is a no-op
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "next-owner", store.value)
}

func TestNewLockValidation(t *testing.T) {
	client := &Client{cmd: newMockCmdable()}
	_, err := NewLock(nil, "k", time.Second)
	require.Error(t, err)
	_, err = NewLock(client, "", time.Second)
	require.Error(t, err)
	_, err = NewLock(client, "k", 0)
	require.Error(t, err)
}
