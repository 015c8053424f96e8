package persistence

import (
	"context"
	"time"

	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormListingRepository implements listing.Repository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// FindByID finds a listing by its ID
func (r *GormListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	var l listing.Listing
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &l, nil
}

// FindByVariant returns every listing of a variant across accounts
func (r *GormListingRepository) FindByVariant(ctx context.Context, variantID uuid.UUID) ([]*listing.Listing, error) {
	var listings []*listing.Listing
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("account_id ASC").
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// FindDue returns pending listings whose next poll or resubmit is due
func (r *GormListingRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error) {
	var listings []*listing.Listing
	query := r.db.WithContext(ctx).
		Where("status IN ?", []listing.Status{listing.StatusPendingCreate, listing.StatusPendingUpdate}).
		Where("next_poll_at IS NOT NULL AND next_poll_at <= ?", now).
		Order("next_poll_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// FindAll lists listings matching the filter
func (r *GormListingRepository) FindAll(ctx context.Context, filter shared.Filter) ([]*listing.Listing, int64, error) {
	query := r.db.WithContext(ctx).Model(&listing.Listing{})
	query = query.Scopes(listingList.where(filter))

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = query.Scopes(listingList.page(filter))

	var listings []*listing.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// Create inserts a new listing
func (r *GormListingRepository) Create(ctx context.Context, l *listing.Listing) error {
	return translateError(r.db.WithContext(ctx).Create(l).Error)
}

// SaveWithLock writes every mutable column when the stored version still
// matches, then bumps l.Version. A listing may pass through several states
// between saves, so the version moves here rather than in the domain.
func (r *GormListingRepository) SaveWithLock(ctx context.Context, l *listing.Listing) error {
	next := l.Version + 1
	result := r.db.WithContext(ctx).
		Model(l).
		Where("id = ? AND version = ?", l.ID, l.Version).
		Updates(map[string]any{
			"status":               l.Status,
			"external_batch_id":    l.ExternalBatchID,
			"last_sync_message":    l.LastSyncMessage,
			"stock_override":       l.StockOverride,
			"price_override":       l.PriceOverride,
			"platform_category_id": l.PlatformCategoryID,
			"platform_brand_id":    l.PlatformBrandID,
			"published":            l.Published,
			"dirty":                l.Dirty,
			"change_seq":           l.ChangeSeq,
			"poll_attempts":        l.PollAttempts,
			"next_poll_at":         l.NextPollAt,
			"last_synced_at":       l.LastSyncedAt,
			"version":              next,
			"updated_at":           l.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return conflict("Listing")
	}
	l.Version = next
	return nil
}

// Ensure GormListingRepository implements listing.Repository
var _ listing.Repository = (*GormListingRepository)(nil)
