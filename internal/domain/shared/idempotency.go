package shared

import (
	"context"
	"time"
)

// DefaultClaimTTL outlives the retry schedule of an outbox entry, so a
// claim cannot lapse while its event is still being redelivered.
const DefaultClaimTTL = 24 * time.Hour

// IdempotencyStore remembers which events a consumer has handled. The
// outbox delivers at least once: consumers claim a key before acting and
// release it when they fail so the redelivery runs again.
type IdempotencyStore interface {
	// Claim returns true when key was free. The claim lapses after ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees key. Releasing a free key is not an error.
	Release(ctx context.Context, key string) error
	Close() error
}
