package event

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	typeRestocked = "ItemRestocked"
	typeRepriced  = "ItemRepriced"
)

type itemEvent struct {
	shared.BaseDomainEvent
	SKU   string `json:"sku"`
	Units int    `json:"units"`
}

func newItemEvent(eventType, sku string, units int) *itemEvent {
	return &itemEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Item", uuid.New()),
		SKU:             sku,
		Units:           units,
	}
}

func itemSerializer() *EventSerializer {
	s := NewEventSerializer()
	Register[itemEvent](s, typeRestocked)
	Register[itemEvent](s, typeRepriced)
	return s
}

// recorder is an EventHandler that remembers what it saw and fails while
// failures > 0.
type recorder struct {
	types []string

	mu       sync.Mutex
	seen     []shared.DomainEvent
	failures int
	panics   bool
}

func (r *recorder) EventTypes() []string { return r.types }

func (r *recorder) Handle(_ context.Context, evt shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, evt)
	if r.panics {
		panic("boom")
	}
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("recorder failed on %s", evt.EventType())
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// newOutboxDB opens a private in-memory SQLite database holding only the
// outbox table.
func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&shared.OutboxEntry{}))
	return db
}

func saveEntries(t *testing.T, repo *GormOutboxRepository, s *EventSerializer, events ...shared.DomainEvent) []*shared.OutboxEntry {
	t.Helper()
	entries := make([]*shared.OutboxEntry, len(events))
	for i, evt := range events {
		payload, err := s.Serialize(evt)
		require.NoError(t, err)
		entries[i] = shared.NewOutboxEntry(evt, payload)
	}
	require.NoError(t, repo.Save(context.Background(), entries...))
	return entries
}
