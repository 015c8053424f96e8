package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
)

// Conflict retry defaults. Writers that lose an optimistic version check
// reload and try again up to DefaultConflictAttempts times.
const (
	DefaultConflictAttempts = 5
	conflictBaseDelay       = 10 * time.Millisecond
	conflictMaxDelay        = 200 * time.Millisecond
)

// RetryOnConflict runs fn until it returns something other than
// shared.ErrConcurrencyConflict, or attempts are used up. fn must reload the
// state it writes on every call.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(shared.ExponentialBackoff(conflictBaseDelay, conflictMaxDelay, attempt)):
		}
	}
	return err
}
