package persistence

import (
	"context"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// GormTransactionScope implements transaction.Scope using GORM transactions.
// Events recorded inside the scope are written to the outbox by saver within
// the same transaction.
type GormTransactionScope struct {
	db    *gorm.DB
	saver shared.OutboxEventSaver
}

// NewGormTransactionScope creates a new GormTransactionScope. A nil saver
// drops recorded events.
func NewGormTransactionScope(db *gorm.DB, saver shared.OutboxEventSaver) *GormTransactionScope {
	return &GormTransactionScope{db: db, saver: saver}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos transaction.Repositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, saver: s.saver})
	})
	if logger.IsRetryableSQLError(err) {
		return conflict("transaction")
	}
	return err
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx    *gorm.DB
	saver shared.OutboxEventSaver
}

func (r *gormTransactionalRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

func (r *gormTransactionalRepositories) Variants() catalog.VariantRepository {
	return NewGormVariantRepository(r.tx)
}

func (r *gormTransactionalRepositories) Components() catalog.BundleComponentRepository {
	return NewGormBundleComponentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Listings() listing.Repository {
	return NewGormListingRepository(r.tx)
}

func (r *gormTransactionalRepositories) OrderLines() order.OrderLineRepository {
	return NewGormOrderLineRepository(r.tx)
}

// Events returns a recorder bound to the current transaction.
func (r *gormTransactionalRepositories) Events() transaction.EventRecorder {
	return transaction.EventRecorderFunc(func(ctx context.Context, events ...shared.DomainEvent) error {
		if r.saver == nil || len(events) == 0 {
			return nil
		}
		return r.saver.SaveEvents(ctx, r.tx, events...)
	})
}

// Ensure GormTransactionScope implements transaction.Scope
var _ transaction.Scope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements transaction.Repositories
var _ transaction.Repositories = (*gormTransactionalRepositories)(nil)
