// Package idempotency lets an event consumer claim an event id once across
// replicas and redeliveries.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager claims event ids for one consumer. Claims live in Redis under
// proc:idempotency:evt:<consumer>:<event_id> and expire after ttl; a zero
// ttl keeps them forever.
type Manager struct {
	store claimStore
	scope string
	ttl   time.Duration
}

func NewManager(store claimStore, consumer string, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, scope: "evt:" + consumer, ttl: ttl}, nil
}

// Claim reports true when this caller is the first to see eventID.
func (m *Manager) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := m.key(eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim so a failed delivery can be handled again.
func (m *Manager) Release(ctx context.Context, eventID string) error {
	key, err := m.key(eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(eventID string) (string, error) {
	id, err := uuid.Parse(eventID)
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("event id %q is not a uuid", eventID)
	}
	return m.store.IdempotencyKey(m.scope, id.String()), nil
}
