package persistence

import (
	"context"
	"time"

	"github.com/bundlesync/engine/internal/domain/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderLineRepository implements OrderLineRepository using GORM
type GormOrderLineRepository struct {
	db *gorm.DB
}

// NewGormOrderLineRepository creates a new GormOrderLineRepository
func NewGormOrderLineRepository(db *gorm.DB) *GormOrderLineRepository {
	return &GormOrderLineRepository{db: db}
}

// FindByExternalLineID returns shared.ErrNotFound when the line was never seen
func (r *GormOrderLineRepository) FindByExternalLineID(ctx context.Context, externalLineID string) (*order.OrderLine, error) {
	return r.findByExternalLineID(r.db.WithContext(ctx), externalLineID)
}

// FindByExternalLineIDForUpdate is FindByExternalLineID holding a row lock
func (r *GormOrderLineRepository) FindByExternalLineIDForUpdate(ctx context.Context, externalLineID string) (*order.OrderLine, error) {
	return r.findByExternalLineID(
		r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}),
		externalLineID,
	)
}

func (r *GormOrderLineRepository) findByExternalLineID(db *gorm.DB, externalLineID string) (*order.OrderLine, error) {
	var line order.OrderLine
	if err := db.Where("external_line_id = ?", externalLineID).First(&line).Error; err != nil {
		return nil, translateError(err)
	}
	return &line, nil
}

// FindSince returns lines that occurred at or after since, oldest first
func (r *GormOrderLineRepository) FindSince(ctx context.Context, since time.Time) ([]order.OrderLine, error) {
	var lines []order.OrderLine
	if err := r.db.WithContext(ctx).
		Where("occurred_at >= ?", since).
		Order("occurred_at ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// Create inserts a line. A duplicate external line ID returns shared.ErrAlreadyExists
func (r *GormOrderLineRepository) Create(ctx context.Context, line *order.OrderLine) error {
	return translateError(r.db.WithContext(ctx).Create(line).Error)
}

// Update saves a changed line
func (r *GormOrderLineRepository) Update(ctx context.Context, line *order.OrderLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// Ensure GormOrderLineRepository implements OrderLineRepository
var _ order.OrderLineRepository = (*GormOrderLineRepository)(nil)
