package catalog

import (
	"context"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindBySKU finds a product by its normalized SKU
	FindBySKU(ctx context.Context, sku string) (*Product, error)

	// FindByIDs finds multiple products by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// FindAll finds all products matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, error)

	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error
}

// VariantRepository defines the interface for variant persistence.
// The ForUpdate methods take row locks and must run inside a transaction.
type VariantRepository interface {
	// FindByID finds a variant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Variant, error)

	// FindBySKU finds a variant by its normalized SKU
	FindBySKU(ctx context.Context, sku string) (*Variant, error)

	// FindByIDs finds multiple variants by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Variant, error)

	// FindByIDsForUpdate locks and returns variants in ascending ID order so
	// concurrent callers acquire locks in the same sequence
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*Variant, error)

	// FindByKind lists variants of one kind
	FindByKind(ctx context.Context, kind VariantKind, filter shared.Filter) ([]*Variant, error)

	// Create inserts a new variant
	Create(ctx context.Context, variant *Variant) error

	// SaveWithLock updates a variant if its stored version is Version-1,
	// otherwise returns shared.ErrConcurrencyConflict
	SaveWithLock(ctx context.Context, variant *Variant) error
}

// BundleComponentRepository persists bundle recipes and the reverse
// component to bundle index.
type BundleComponentRepository interface {
	// FindByBundle returns the recipe of a bundle
	FindByBundle(ctx context.Context, bundleID uuid.UUID) ([]BundleComponent, error)

	// FindBundlesByComponent returns the IDs of bundles that use the component
	FindBundlesByComponent(ctx context.Context, componentID uuid.UUID) ([]uuid.UUID, error)

	// ReplaceRecipe deletes the bundle's current lines and inserts the given ones
	ReplaceRecipe(ctx context.Context, bundleID uuid.UUID, lines []*BundleComponent) error
}
