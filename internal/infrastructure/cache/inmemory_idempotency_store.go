package cache

import (
	"context"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
)

// InMemoryIdempotencyStore holds event claims in process. Fine for a single
// instance; replicas need RedisIdempotencyStore.
type InMemoryIdempotencyStore struct {
	keys    *keySet
	janitor *janitor
}

// NewInMemoryIdempotencyStore creates a store and starts its expiry sweeper.
// Call Close to stop it.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	keys := newKeySet()
	return &InMemoryIdempotencyStore{keys: keys, janitor: startJanitor(keys, janitorInterval)}
}

// Claim returns true when key was free or its claim had lapsed.
func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return s.keys.setIfAbsent(key, "", ttl), nil
}

// Release frees key.
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.keys.delete(key)
	return nil
}

// Held reports whether key is claimed and not expired.
func (s *InMemoryIdempotencyStore) Held(key string) bool {
	return s.keys.has(key)
}

// Close stops the sweeper.
func (s *InMemoryIdempotencyStore) Close() error {
	s.janitor.Close()
	return nil
}

// Size returns the number of claims, expired ones included until swept.
func (s *InMemoryIdempotencyStore) Size() int {
	return s.keys.len()
}

func (s *InMemoryIdempotencyStore) cleanup() {
	s.keys.sweep()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
