package order

import (
	"context"
	"time"
)

// OrderLineRepository defines the interface for order line persistence
type OrderLineRepository interface {
	// FindByExternalLineID returns shared.ErrNotFound when the line was never seen
	FindByExternalLineID(ctx context.Context, externalLineID string) (*OrderLine, error)

	// FindByExternalLineIDForUpdate is FindByExternalLineID holding a row lock
	FindByExternalLineIDForUpdate(ctx context.Context, externalLineID string) (*OrderLine, error)

	// FindSince returns lines that occurred at or after since, oldest first
	FindSince(ctx context.Context, since time.Time) ([]OrderLine, error)

	// Create inserts a line. A duplicate external line ID returns shared.ErrAlreadyExists
	Create(ctx context.Context, line *OrderLine) error

	// Update saves a changed line
	Update(ctx context.Context, line *OrderLine) error
}
