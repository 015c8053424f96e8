package persistence

import (
	"context"
	"slices"
	"strings"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormVariantRepository implements VariantRepository using GORM
type GormVariantRepository struct {
	db *gorm.DB
}

// NewGormVariantRepository creates a new GormVariantRepository
func NewGormVariantRepository(db *gorm.DB) *GormVariantRepository {
	return &GormVariantRepository{db: db}
}

// FindByID finds a variant by its ID
func (r *GormVariantRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Variant, error) {
	var variant catalog.Variant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &variant, nil
}

// FindBySKU finds a variant by its normalized SKU
func (r *GormVariantRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Variant, error) {
	var variant catalog.Variant
	if err := r.db.WithContext(ctx).
		Where("sku = ?", catalog.NormalizeSKU(sku)).
		First(&variant).Error; err != nil {
		return nil, translateError(err)
	}
	return &variant, nil
}

// FindByIDs finds multiple variants by their IDs
func (r *GormVariantRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*catalog.Variant, error) {
	if len(ids) == 0 {
		return []*catalog.Variant{}, nil
	}
	var variants []*catalog.Variant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

// FindByIDsForUpdate locks the rows with SELECT ... FOR UPDATE, ordered by id.
// Postgres takes the locks in result order, so every caller locks the same
// set of rows in the same sequence.
func (r *GormVariantRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*catalog.Variant, error) {
	if len(ids) == 0 {
		return []*catalog.Variant{}, nil
	}
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})

	var variants []*catalog.Variant
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

// FindByKind lists variants of one kind
func (r *GormVariantRepository) FindByKind(ctx context.Context, kind catalog.VariantKind, filter shared.Filter) ([]*catalog.Variant, error) {
	var variants []*catalog.Variant
	query := r.db.WithContext(ctx).Model(&catalog.Variant{}).Where("kind = ?", kind)
	if filter.Filters["in_stock"] == true {
		query = query.Where("stock > 0")
	}
	query = query.Scopes(variantList.where(filter), variantList.page(filter))
	if err := query.Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

// Create inserts a new variant
func (r *GormVariantRepository) Create(ctx context.Context, variant *catalog.Variant) error {
	return translateError(r.db.WithContext(ctx).Create(variant).Error)
}

// SaveWithLock saves with optimistic locking (checks version).
// The domain bumps Version once per mutation, so the stored row must still
// hold Version-1.
func (r *GormVariantRepository) SaveWithLock(ctx context.Context, variant *catalog.Variant) error {
	result := r.db.WithContext(ctx).
		Model(variant).
		Where("id = ? AND version = ?", variant.ID, variant.Version-1).
		Updates(map[string]any{
			"barcode":    variant.Barcode,
			"stock":      variant.Stock,
			"price":      variant.Price,
			"list_price": variant.ListPrice,
			"vat_rate":   variant.VATRate,
			"version":    variant.Version,
			"updated_at": variant.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return conflict("Variant")
	}
	return nil
}

// Ensure GormVariantRepository implements VariantRepository
var _ catalog.VariantRepository = (*GormVariantRepository)(nil)
