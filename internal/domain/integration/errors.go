package integration

import (
	"context"
	"errors"
)

var (
	// ErrMarketplaceUnavailable marks failures worth retrying: timeouts,
	// connection errors, 5xx and rate limiting.
	ErrMarketplaceUnavailable = errors.New("integration: marketplace temporarily unavailable")
	// ErrMarketplaceRejected marks a request the marketplace refused on its merits.
	ErrMarketplaceRejected = errors.New("integration: marketplace rejected request")
	// ErrMissingBatchID is returned when a submit succeeds without a batch to poll.
	ErrMissingBatchID = errors.New("integration: marketplace did not return a batch id")
	// ErrAccountNotConfigured is returned when an account lacks credentials or a base URL.
	ErrAccountNotConfigured = errors.New("integration: marketplace account not configured")
)

// IsTransient reports whether err should be retried rather than recorded as a failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrMarketplaceUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
