package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormOutboxRepository_ClaimBatchSelectsDueEntries(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	ctx := context.Background()
	s := itemSerializer()
	entries := saveEntries(t, repo, s,
		newItemEvent(typeRestocked, "pending", 1),
		newItemEvent(typeRestocked, "due-retry", 1),
		newItemEvent(typeRestocked, "backing-off", 1),
		newItemEvent(typeRestocked, "dead", 1),
		newItemEvent(typeRestocked, "sent", 1),
	)
	entries[1].MarkFailed("first")
	past := time.Now().Add(-time.Second)
	entries[1].NextRetryAt = &past
	entries[2].MarkFailed("first")
	entries[3].RetryCount = entries[3].MaxRetries - 1
	entries[3].MarkFailed("last")
	entries[4].MarkSent()
	for _, e := range entries[1:] {
		require.NoError(t, repo.Update(ctx, e))
	}

	now := time.Now()
	claimed, err := repo.ClaimBatch(ctx, now, 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(claimed))
	for i, e := range claimed {
		ids[i] = e.ID
		assert.Equal(t, shared.OutboxStatusProcessing, e.Status)
		require.NotNil(t, e.ClaimedAt)
	}
	assert.ElementsMatch(t, []uuid.UUID{entries[0].ID, entries[1].ID}, ids)

	stored, err := repo.FindByID(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusProcessing, stored.Status)

	again, err := repo.ClaimBatch(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed entries are not handed out twice")
}

func TestGormOutboxRepository_ClaimBatchRespectsLimitAndOrder(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	ctx := context.Background()
	s := itemSerializer()
	var entries []*shared.OutboxEntry
	for i := 0; i < 5; i++ {
		e := saveEntries(t, repo, s, newItemEvent(typeRestocked, "A", i))[0]
		e.CreatedAt = time.Now().Add(time.Duration(i-10) * time.Minute)
		require.NoError(t, repo.Update(ctx, e))
		entries = append(entries, e)
	}

	claimed, err := repo.ClaimBatch(ctx, time.Now(), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, entries[0].ID, claimed[0].ID)
	assert.Equal(t, entries[1].ID, claimed[1].ID)

	none, err := repo.ClaimBatch(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormOutboxRepository_ConcurrentClaimsDoNotOverlap(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	s := itemSerializer()
	for i := 0; i < 20; i++ {
		saveEntries(t, repo, s, newItemEvent(typeRestocked, "A", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := repo.ClaimBatch(context.Background(), time.Now(), 3)
				if !assert.NoError(t, err) || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "entry %s claimed %d times", id, n)
	}
}

func TestGormOutboxRepository_FindStale(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	ctx := context.Background()
	saveEntries(t, repo, itemSerializer(), newItemEvent(typeRestocked, "A", 1), newItemEvent(typeRestocked, "B", 1))

	claimedAt := time.Now().Add(-time.Hour)
	_, err := repo.ClaimBatch(ctx, claimedAt, 1)
	require.NoError(t, err)
	_, err = repo.ClaimBatch(ctx, time.Now(), 1)
	require.NoError(t, err)

	stale, err := repo.FindStale(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.WithinDuration(t, claimedAt, *stale[0].ClaimedAt, time.Second)
}

func TestGormOutboxRepository_DeadLettersAndCounts(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	ctx := context.Background()
	entries := saveEntries(t, repo, itemSerializer(),
		newItemEvent(typeRestocked, "A", 1),
		newItemEvent(typeRestocked, "B", 1),
		newItemEvent(typeRestocked, "C", 1),
	)
	for _, e := range entries[:2] {
		e.RetryCount = e.MaxRetries - 1
		e.MarkFailed("handler failed")
		require.NoError(t, repo.Update(ctx, e))
	}

	dead, total, err := repo.FindDead(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, dead, 1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[shared.OutboxStatusDead])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusPending])
}

func TestGormOutboxRepository_DeleteOlderThanKeepsUnsent(t *testing.T) {
	repo := NewGormOutboxRepository(newOutboxDB(t))
	ctx := context.Background()
	entries := saveEntries(t, repo, itemSerializer(), newItemEvent(typeRestocked, "A", 1), newItemEvent(typeRestocked, "B", 1))
	entries[0].MarkSent()
	old := time.Now().Add(-48 * time.Hour)
	entries[0].ProcessedAt = &old
	require.NoError(t, repo.Update(ctx, entries[0]))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByID(ctx, entries[0].ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindByID(ctx, entries[1].ID)
	assert.NoError(t, err)
}
