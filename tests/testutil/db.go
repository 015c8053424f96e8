package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/event"
	"github.com/bundlesync/engine/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory SQLite database with the engine
// schema migrated. All statements share one connection, so code under test
// must not use a non-transactional repository while a transaction is open.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to open SQLite database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, persistence.AutoMigrate(db), "Failed to migrate schema")
	return db
}

// Store bundles a test database with the repositories and transaction
// scope built on it. Events recorded in the scope land in the outbox table.
type Store struct {
	DB         *gorm.DB
	Scope      *persistence.GormTransactionScope
	Serializer *event.EventSerializer
	Products   *persistence.GormProductRepository
	Variants   *persistence.GormVariantRepository
	Components *persistence.GormBundleComponentRepository
	Listings   *persistence.GormListingRepository
	OrderLines *persistence.GormOrderLineRepository
	Outbox     *event.GormOutboxRepository
}

// NewStore creates a Store over a fresh SQLite database.
func NewStore(t *testing.T) *Store {
	t.Helper()
	return StoreFor(NewSQLiteDB(t))
}

// StoreFor builds a Store over an already migrated database.
func StoreFor(db *gorm.DB) *Store {
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)

	return &Store{
		DB:         db,
		Scope:      persistence.NewGormTransactionScope(db, event.NewOutboxPublisher(serializer)),
		Serializer: serializer,
		Products:   persistence.NewGormProductRepository(db),
		Variants:   persistence.NewGormVariantRepository(db),
		Components: persistence.NewGormBundleComponentRepository(db),
		Listings:   persistence.NewGormListingRepository(db),
		OrderLines: persistence.NewGormOrderLineRepository(db),
		Outbox:     event.NewGormOutboxRepository(db),
	}
}

// PendingEvents decodes the outbox entries not yet delivered, oldest first.
func (s *Store) PendingEvents(t *testing.T) []shared.DomainEvent {
	t.Helper()

	entries, err := s.Outbox.FindPending(context.Background(), 1000)
	require.NoError(t, err)
	events := make([]shared.DomainEvent, 0, len(entries))
	for _, e := range entries {
		decoded, err := s.Serializer.Deserialize(e.EventType, e.Payload)
		require.NoError(t, err)
		events = append(events, decoded)
	}
	return events
}

// Drain runs the outbox processor against handlers until nothing is due,
// then fails the test if any delivery failed. It keeps tests synchronous.
func (s *Store) Drain(t *testing.T, handlers ...shared.EventHandler) {
	t.Helper()
	ctx := context.Background()

	bus := event.NewInMemoryEventBus(zap.NewNop())
	for _, h := range handlers {
		bus.Subscribe(h)
	}
	processor := event.NewOutboxProcessor(s.Outbox, bus, s.Serializer, event.DefaultOutboxProcessorConfig(), zap.NewNop())

	for round := 0; processor.Drain(ctx) > 0; round++ {
		require.Less(t, round, 10, "outbox did not drain after 10 rounds")
	}

	var failed []shared.OutboxEntry
	require.NoError(t, s.DB.Where("status IN ?", []shared.OutboxStatus{shared.OutboxStatusFailed, shared.OutboxStatusDead}).Find(&failed).Error)
	for _, e := range failed {
		assert.Fail(t, "outbox delivery failed", "%s %s: %s", e.EventType, e.EventID, e.LastError)
	}
}
