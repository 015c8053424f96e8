package listing

import (
	"context"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for listing persistence
type Repository interface {
	// FindByID finds a listing by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Listing, error)

	// FindByVariant returns every listing of a variant across accounts
	FindByVariant(ctx context.Context, variantID uuid.UUID) ([]*Listing, error)

	// FindDue returns pending listings whose NextPollAt is at or before now
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Listing, error)

	// FindAll lists listings matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]*Listing, int64, error)

	// Create inserts a new listing
	Create(ctx context.Context, l *Listing) error

	// SaveWithLock writes the listing if the stored version still equals
	// l.Version, then bumps l.Version. A mismatch returns shared.ErrConcurrencyConflict
	SaveWithLock(ctx context.Context, l *Listing) error
}
