package listing

import (
	"testing"
	"time"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	policy = RetryPolicy{MaxRetries: 3, InitialPollDelay: 30 * time.Second, BaseDelay: time.Minute, MaxDelay: 3 * time.Minute}
)

func newDraft(t *testing.T) *Listing {
	t.Helper()
	l, err := NewListing(uuid.New(), "acc-1")
	require.NoError(t, err)
	return l
}

func submitted(t *testing.T) *Listing {
	t.Helper()
	l := newDraft(t)
	_, err := l.BeginSubmit(t0)
	require.NoError(t, err)
	_, err = l.RecordBatch("batch-1", policy, t0)
	require.NoError(t, err)
	return l
}

var success = integration.BatchResult{State: integration.BatchStateCompleted, ItemSucceeded: true}

func TestNewListing(t *testing.T) {
	l := newDraft(t)
	assert.Equal(t, StatusDraft, l.Status)

	_, err := NewListing(uuid.Nil, "acc")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = NewListing(uuid.New(), " ")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestListing_BeginSubmit(t *testing.T) {
	t.Run("draft goes to pending create", func(t *testing.T) {
		l := newDraft(t)
		d, err := l.BeginSubmit(t0)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingCreate, l.Status)
		assert.Equal(t, Decision{Action: PollActionSubmit, At: t0}, d)
		assert.Equal(t, PollActionSubmit, l.NextAction())
	})

	t.Run("active goes to pending update", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(success, policy, t0)
		_, err := l.BeginSubmit(t0)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingUpdate, l.Status)
		assert.True(t, l.IsUpdate())
	})

	t.Run("failed before first publish retries as create", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(integration.BatchResult{State: integration.BatchStateFailed}, policy, t0)
		require.Equal(t, StatusFailed, l.Status)

		_, err := l.BeginSubmit(t0)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingCreate, l.Status)
	})

	t.Run("failed after publish retries as update", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(success, policy, t0)
		_, _ = l.BeginSubmit(t0)
		_, _ = l.RecordBatch("batch-2", policy, t0)
		l.ApplyPollResult(integration.BatchResult{State: integration.BatchStateCompleted, FailureReasons: []string{"bad"}}, policy, t0)
		require.Equal(t, StatusFailed, l.Status)

		_, err := l.BeginSubmit(t0)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingUpdate, l.Status)
	})

	t.Run("pending defers the change", func(t *testing.T) {
		l := submitted(t)
		_, err := l.BeginSubmit(t0)
		assert.ErrorIs(t, err, ErrSubmitInFlight)
		assert.True(t, l.Dirty)
		assert.Equal(t, StatusPendingCreate, l.Status)
		assert.Equal(t, "batch-1", l.ExternalBatchID)
	})

	t.Run("archived is a no-op", func(t *testing.T) {
		l := newDraft(t)
		l.Archive()
		_, err := l.BeginSubmit(t0)
		assert.ErrorIs(t, err, ErrListingArchived)
		assert.Equal(t, StatusArchived, l.Status)
	})
}

func TestListing_RecordBatch(t *testing.T) {
	t.Run("schedules first poll", func(t *testing.T) {
		l := newDraft(t)
		_, _ = l.BeginSubmit(t0)
		d, err := l.RecordBatch("b-1", policy, t0)
		require.NoError(t, err)
		assert.Equal(t, PollActionPoll, d.Action)
		assert.Equal(t, t0.Add(30*time.Second), d.At)
		assert.Equal(t, PollActionPoll, l.NextAction())
	})

	t.Run("missing batch id fails the listing", func(t *testing.T) {
		l := newDraft(t)
		_, _ = l.BeginSubmit(t0)
		d, err := l.RecordBatch("  ", policy, t0)
		require.NoError(t, err)
		assert.Equal(t, PollActionNone, d.Action)
		assert.Equal(t, StatusFailed, l.Status)
		assert.Equal(t, MessageMissingBatchID, l.LastSyncMessage)
	})

	t.Run("requires a pending cycle", func(t *testing.T) {
		l := newDraft(t)
		_, err := l.RecordBatch("b-1", policy, t0)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestListing_ApplyPollResult(t *testing.T) {
	t.Run("success activates and clears message", func(t *testing.T) {
		l := submitted(t)
		l.LastSyncMessage = "previous error"
		d := l.ApplyPollResult(success, policy, t0)
		assert.Equal(t, PollActionNone, d.Action)
		assert.Equal(t, StatusActive, l.Status)
		assert.Empty(t, l.LastSyncMessage)
		assert.True(t, l.Published)
		assert.Nil(t, l.NextPollAt)
	})

	t.Run("item failure records reasons", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(integration.BatchResult{
			State:          integration.BatchStateCompleted,
			FailureReasons: []string{"invalid ean"},
		}, policy, t0)
		assert.Equal(t, StatusFailed, l.Status)
		assert.Equal(t, "invalid ean", l.LastSyncMessage)
	})

	t.Run("processing backs off until the bound then times out", func(t *testing.T) {
		l := submitted(t)
		processing := integration.BatchResult{State: integration.BatchStateProcessing}

		want := []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute}
		for i, delay := range want {
			d := l.ApplyPollResult(processing, policy, t0)
			assert.Equal(t, PollActionPoll, d.Action, "attempt %d", i+1)
			assert.Equal(t, t0.Add(delay), d.At, "attempt %d", i+1)
			assert.Equal(t, StatusPendingCreate, l.Status)
		}

		d := l.ApplyPollResult(processing, policy, t0)
		assert.Equal(t, PollActionNone, d.Action)
		assert.Equal(t, StatusFailed, l.Status)
		assert.Contains(t, l.LastSyncMessage, "timed out")
	})

	t.Run("transport errors share the retry bound", func(t *testing.T) {
		l := submitted(t)
		for i := 0; i < policy.MaxRetries; i++ {
			d := l.RecordPollError("connection reset", policy, t0)
			assert.Equal(t, PollActionPoll, d.Action)
		}
		assert.Equal(t, "connection reset", l.LastSyncMessage)

		l.RecordPollError("connection reset", policy, t0)
		assert.Equal(t, StatusFailed, l.Status)
	})

	t.Run("deferred change starts a new cycle", func(t *testing.T) {
		l := submitted(t)
		_, err := l.BeginSubmit(t0)
		require.ErrorIs(t, err, ErrSubmitInFlight)

		d := l.ApplyPollResult(success, policy, t0)
		assert.Equal(t, PollActionSubmit, d.Action)
		assert.Equal(t, StatusPendingUpdate, l.Status)
		assert.False(t, l.Dirty)
		assert.Empty(t, l.ExternalBatchID)
	})

	t.Run("stale poll after archive is ignored", func(t *testing.T) {
		l := submitted(t)
		assert.True(t, l.Archive())
		d := l.ApplyPollResult(success, policy, t0)
		assert.Equal(t, PollActionNone, d.Action)
		assert.Equal(t, StatusArchived, l.Status)
	})
}

func TestListing_RecordSubmitError(t *testing.T) {
	t.Run("transient error schedules resubmit", func(t *testing.T) {
		l := newDraft(t)
		_, _ = l.BeginSubmit(t0)
		d := l.RecordSubmitError("timeout", true, policy, t0)
		assert.Equal(t, PollActionSubmit, d.Action)
		assert.Equal(t, t0.Add(time.Minute), d.At)
		assert.Equal(t, StatusPendingCreate, l.Status)
	})

	t.Run("rejection fails immediately", func(t *testing.T) {
		l := newDraft(t)
		_, _ = l.BeginSubmit(t0)
		l.RecordSubmitError("invalid category", false, policy, t0)
		assert.Equal(t, StatusFailed, l.Status)
		assert.Equal(t, "invalid category", l.LastSyncMessage)
	})
}

func TestListing_MarkChanged(t *testing.T) {
	t.Run("active listing asks for a sync", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(success, policy, t0)
		require.Equal(t, StatusActive, l.Status)

		assert.True(t, l.MarkChanged())
		assert.True(t, l.Dirty)

		_, err := l.BeginSubmit(t0)
		require.NoError(t, err)
		assert.False(t, l.Dirty)
		assert.Equal(t, StatusPendingUpdate, l.Status)
	})

	t.Run("pending listing defers the change", func(t *testing.T) {
		l := submitted(t)
		assert.False(t, l.MarkChanged())
		assert.True(t, l.Dirty)

		d := l.ApplyPollResult(success, policy, t0)
		assert.Equal(t, PollActionSubmit, d.Action)
		assert.Equal(t, StatusPendingUpdate, l.Status)
	})

	t.Run("draft and archived ignore changes", func(t *testing.T) {
		l := newDraft(t)
		assert.False(t, l.MarkChanged())
		assert.False(t, l.Dirty)

		l.Archive()
		assert.False(t, l.MarkChanged())
		assert.False(t, l.Dirty)
	})

	t.Run("push clears the flag", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(success, policy, t0)
		l.MarkChanged()

		assert.True(t, l.MarkPushed(l.ChangeSeq, t0.Add(time.Hour)))
		assert.False(t, l.Dirty)
		assert.Equal(t, t0.Add(time.Hour), *l.LastSyncedAt)
		assert.Equal(t, StatusActive, l.Status)
	})

	t.Run("change during push keeps the flag", func(t *testing.T) {
		l := submitted(t)
		l.ApplyPollResult(success, policy, t0)
		l.MarkChanged()
		sent := l.ChangeSeq

		assert.True(t, l.MarkChanged())
		assert.Equal(t, sent+1, l.ChangeSeq)

		assert.False(t, l.MarkPushed(sent, t0.Add(time.Hour)))
		assert.True(t, l.Dirty)
		assert.True(t, l.MarkPushed(l.ChangeSeq, t0.Add(2*time.Hour)))
		assert.False(t, l.Dirty)
	})
}

func TestListing_StatusEvents(t *testing.T) {
	l := submitted(t)
	l.ApplyPollResult(success, policy, t0)

	events := l.PopDomainEvents()
	require.Len(t, events, 2)
	ev, ok := events[1].(*StatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, StatusPendingCreate, ev.OldStatus)
	assert.Equal(t, StatusActive, ev.NewStatus)
}

func TestBuildPayload(t *testing.T) {
	product, err := catalog.NewProduct("SKU-A", "Shampoo")
	require.NoError(t, err)
	v, err := catalog.NewSimpleVariant(product.ID, "SKU-A", decimal.NewFromInt(50), 8)
	require.NoError(t, err)

	t.Run("stock override caps published stock", func(t *testing.T) {
		l := newDraft(t)
		five := 5
		require.NoError(t, l.SetOverrides(&five, nil))
		assert.Equal(t, 5, BuildPayload(l, v, product).Stock)

		twenty := 20
		require.NoError(t, l.SetOverrides(&twenty, nil))
		assert.Equal(t, 8, BuildPayload(l, v, product).Stock)
	})

	t.Run("list price never below price", func(t *testing.T) {
		l := newDraft(t)
		override := decimal.NewFromInt(70)
		require.NoError(t, l.SetOverrides(nil, &override))

		p := BuildPayload(l, v, product)
		assert.True(t, p.Price.Equal(override))
		assert.True(t, p.ListPrice.Equal(override))
		assert.Equal(t, "Shampoo", p.Title)
		assert.Equal(t, catalog.DefaultVATRate, p.VATRate)
	})
}
