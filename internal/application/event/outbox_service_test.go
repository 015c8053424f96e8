package event

import (
	"context"
	"testing"
	"time"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedEntries(t *testing.T, store *testutil.Store, statuses ...shared.OutboxStatus) []*shared.OutboxEntry {
	t.Helper()
	entries := make([]*shared.OutboxEntry, len(statuses))
	for i, status := range statuses {
		entry := shared.NewOutboxEntry(testutil.NewTestEvent(catalog.EventTypeStockChanged), []byte(`{}`))
		entry.Status = status
		if status == shared.OutboxStatusDead {
			entry.RetryCount = entry.MaxRetries
			entry.LastError = "handler failed"
		}
		if status == shared.OutboxStatusSent {
			at := time.Now().Add(-48 * time.Hour)
			entry.ProcessedAt = &at
		}
		entries[i] = entry
	}
	require.NoError(t, store.Outbox.Save(context.Background(), entries...))
	return entries
}

func TestOutboxService_Stats(t *testing.T) {
	store := testutil.NewStore(t)
	svc := NewOutboxService(store.Outbox, zap.NewNop())
	seedEntries(t, store,
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusFailed,
		shared.OutboxStatusSent,
		shared.OutboxStatusDead,
	)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(3), stats.Backlog())
}

func TestOutboxService_DeadLetters(t *testing.T) {
	store := testutil.NewStore(t)
	svc := NewOutboxService(store.Outbox, zap.NewNop())
	seedEntries(t, store, shared.OutboxStatusDead, shared.OutboxStatusDead, shared.OutboxStatusDead, shared.OutboxStatusPending)

	page, err := svc.DeadLetters(context.Background(), DeadLetterQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Entries, 2)
	for _, e := range page.Entries {
		assert.Equal(t, "DEAD", e.Status)
		assert.Equal(t, catalog.EventTypeStockChanged, e.EventType)
	}

	page, err = svc.DeadLetters(context.Background(), DeadLetterQuery{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
}

func TestOutboxService_Requeue(t *testing.T) {
	store := testutil.NewStore(t)
	svc := NewOutboxService(store.Outbox, zap.NewNop())
	entries := seedEntries(t, store, shared.OutboxStatusDead, shared.OutboxStatusPending)
	ctx := context.Background()

	t.Run("dead entry goes back to pending", func(t *testing.T) {
		resp, err := svc.Requeue(ctx, entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Zero(t, resp.RetryCount)
		assert.Empty(t, resp.LastError)
	})

	t.Run("live entry cannot be requeued", func(t *testing.T) {
		_, err := svc.Requeue(ctx, entries[1].ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := svc.Requeue(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestOutboxService_RequeueAll(t *testing.T) {
	store := testutil.NewStore(t)
	svc := NewOutboxService(store.Outbox, zap.NewNop())
	seedEntries(t, store, shared.OutboxStatusDead, shared.OutboxStatusDead, shared.OutboxStatusDead, shared.OutboxStatusSent)

	count, err := svc.RequeueAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Dead)
	assert.Equal(t, int64(3), stats.Pending)
}

func TestOutboxService_Purge(t *testing.T) {
	store := testutil.NewStore(t)
	svc := NewOutboxService(store.Outbox, zap.NewNop())
	seedEntries(t, store, shared.OutboxStatusSent, shared.OutboxStatusPending)

	deleted, err := svc.Purge(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.Purge(context.Background(), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
