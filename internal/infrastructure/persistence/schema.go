package persistence

import (
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
	"gorm.io/gorm"
)

// Models returns every persisted type. SQL migrations own the production
// schema; AutoMigrate over Models is for SQLite-backed tests and local tools.
func Models() []any {
	return []any{
		&catalog.Product{},
		&catalog.Variant{},
		&catalog.BundleComponent{},
		&listing.Listing{},
		&order.OrderLine{},
		&shared.OutboxEntry{},
	}
}

// AutoMigrate creates or updates the tables for Models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
