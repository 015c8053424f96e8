package persistence

import (
	"context"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBundleComponentRepository implements BundleComponentRepository using GORM
type GormBundleComponentRepository struct {
	db *gorm.DB
}

// NewGormBundleComponentRepository creates a new GormBundleComponentRepository
func NewGormBundleComponentRepository(db *gorm.DB) *GormBundleComponentRepository {
	return &GormBundleComponentRepository{db: db}
}

// FindByBundle returns the recipe of a bundle
func (r *GormBundleComponentRepository) FindByBundle(ctx context.Context, bundleID uuid.UUID) ([]catalog.BundleComponent, error) {
	var lines []catalog.BundleComponent
	if err := r.db.WithContext(ctx).
		Where("bundle_variant_id = ?", bundleID).
		Order("created_at ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindBundlesByComponent returns the IDs of bundles that use the component
func (r *GormBundleComponentRepository) FindBundlesByComponent(ctx context.Context, componentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&catalog.BundleComponent{}).
		Where("component_variant_id = ?", componentID).
		Distinct().
		Pluck("bundle_variant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceRecipe deletes the bundle's current lines and inserts the given ones.
// Callers run it inside a transaction so readers never see a partial recipe.
func (r *GormBundleComponentRepository) ReplaceRecipe(ctx context.Context, bundleID uuid.UUID, lines []*catalog.BundleComponent) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("bundle_variant_id = ?", bundleID).Delete(&catalog.BundleComponent{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return translateError(db.Create(lines).Error)
}

// Ensure GormBundleComponentRepository implements BundleComponentRepository
var _ catalog.BundleComponentRepository = (*GormBundleComponentRepository)(nil)
