package listing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) SubmitListing(ctx context.Context, account integration.Account, payload integration.ListingPayload) (string, error) {
	args := m.Called(ctx, account, payload)
	return args.String(0), args.Error(1)
}

func (m *MockMarketplace) PollBatch(ctx context.Context, account integration.Account, batchID string) (integration.BatchResult, error) {
	args := m.Called(ctx, account, batchID)
	return args.Get(0).(integration.BatchResult), args.Error(1)
}

func (m *MockMarketplace) PushStock(ctx context.Context, account integration.Account, update integration.StockUpdate) (string, error) {
	args := m.Called(ctx, account, update)
	return args.String(0), args.Error(1)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) pop(t *testing.T) Job {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.jobs, "expected a queued job")
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job
}

// drain runs every queued job, including follow-ups, in order.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for i := 0; f.queue.len() > 0; i++ {
		require.Less(t, i, 20, "sync jobs did not settle")
		job := f.queue.pop(t)
		f.clock.AdvanceTo(job.NotBefore)
		require.NoError(t, f.service.Execute(context.Background(), job))
	}
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type stubFlights struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *stubFlights) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, true, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

var (
	plainAccount = integration.Account{AccountID: "acc-1", BaseURL: "https://api.example.test", APIKey: "k", APISecret: "s"}
	pushAccount  = integration.Account{AccountID: "acc-push", BaseURL: "https://api.example.test", APIKey: "k", APISecret: "s", PushInventory: true}
	testPolicy   = listing.RetryPolicy{MaxRetries: 2, InitialPollDelay: 30 * time.Second, BaseDelay: time.Minute, MaxDelay: 5 * time.Minute}
)

type fixture struct {
	store       *testutil.Store
	marketplace *MockMarketplace
	queue       *recordingQueue
	flights     *stubFlights
	clock       *fakeClock
	service     *SyncService
	variant     *catalog.Variant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewStore(t)

	product, err := catalog.NewProduct("P-1", "Shampoo 250ml")
	require.NoError(t, err)
	product.Classify("Acme", "Hair")
	require.NoError(t, store.Products.Save(ctx, product))

	variant, err := catalog.NewSimpleVariant(product.ID, "SKU-A", decimal.RequireFromString("9.99"), 8)
	require.NoError(t, err)
	require.NoError(t, store.Variants.Create(ctx, variant))

	f := &fixture{
		store:       store,
		marketplace: new(MockMarketplace),
		queue:       &recordingQueue{},
		flights:     &stubFlights{held: map[string]bool{}},
		clock:       &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		variant:     variant,
	}
	f.service = NewSyncService(
		store.Scope, store.Listings, store.Variants, store.Products,
		f.marketplace, integration.NewStaticAccounts(plainAccount, pushAccount),
		f.queue, f.flights, zap.NewNop(),
		WithRetryPolicy(testPolicy),
		WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) createListing(t *testing.T, account string) uuid.UUID {
	t.Helper()
	resp, err := f.service.CreateListing(context.Background(), CreateListingRequest{VariantID: f.variant.ID, AccountID: account})
	require.NoError(t, err)
	assert.Equal(t, listing.StatusDraft, resp.Status)
	return resp.ID
}

// runNext executes the next queued job once it is due.
func (f *fixture) runNext(t *testing.T, kind JobKind) {
	t.Helper()
	job := f.queue.pop(t)
	require.Equal(t, kind, job.Kind)
	f.clock.AdvanceTo(job.NotBefore)
	require.NoError(t, f.service.Execute(context.Background(), job))
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *listing.Listing {
	t.Helper()
	l, err := f.store.Listings.FindByID(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (f *fixture) activate(t *testing.T, id uuid.UUID, batch string) {
	t.Helper()
	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).Return(batch, nil).Once()
	f.marketplace.On("PollBatch", mock.Anything, mock.Anything, batch).
		Return(integration.BatchResult{State: integration.BatchStateCompleted, ItemSucceeded: true}, nil).Once()

	_, err := f.service.SyncListing(context.Background(), id)
	require.NoError(t, err)
	f.runNext(t, JobKindSubmit)
	f.runNext(t, JobKindPoll)
	require.Equal(t, listing.StatusActive, f.get(t, id).Status)
}

func TestSyncService_SubmitPollActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createListing(t, "acc-1")

	f.marketplace.On("SubmitListing", mock.Anything, plainAccount, mock.MatchedBy(func(p integration.ListingPayload) bool {
		return p.SKU == "SKU-A" && p.Stock == 8 && p.Title == "Shampoo 250ml" && !p.Update
	})).Return("batch-1", nil).Once()
	f.marketplace.On("PollBatch", mock.Anything, plainAccount, "batch-1").
		Return(integration.BatchResult{State: integration.BatchStateProcessing}, nil).Once()
	f.marketplace.On("PollBatch", mock.Anything, plainAccount, "batch-1").
		Return(integration.BatchResult{State: integration.BatchStateCompleted, ItemSucceeded: true}, nil).Once()

	resp, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	assert.False(t, resp.Deferred)
	assert.Equal(t, listing.StatusPendingCreate, resp.Listing.Status)

	f.runNext(t, JobKindSubmit)
	assert.Equal(t, "batch-1", f.get(t, id).ExternalBatchID)

	f.runNext(t, JobKindPoll)
	assert.Equal(t, 1, f.get(t, id).PollAttempts)

	f.runNext(t, JobKindPoll)
	l := f.get(t, id)
	assert.Equal(t, listing.StatusActive, l.Status)
	assert.True(t, l.Published)
	assert.Empty(t, l.LastSyncMessage)
	assert.Zero(t, f.queue.len())
	f.marketplace.AssertExpectations(t)
}

func TestSyncService_ChangeWhilePendingIsDeferred(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createListing(t, "acc-1")

	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.MatchedBy(func(p integration.ListingPayload) bool { return !p.Update })).
		Return("batch-1", nil).Once()
	f.marketplace.On("PollBatch", mock.Anything, mock.Anything, "batch-1").
		Return(integration.BatchResult{State: integration.BatchStateCompleted, ItemSucceeded: true}, nil).Once()

	_, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	f.runNext(t, JobKindSubmit)

	again, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Deferred)
	assert.True(t, again.Listing.Dirty)
	assert.Equal(t, 1, f.queue.len(), "only the outstanding poll is queued")

	f.runNext(t, JobKindPoll)
	l := f.get(t, id)
	assert.Equal(t, listing.StatusPendingUpdate, l.Status)
	assert.False(t, l.Dirty)
	assert.True(t, l.Published)

	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.MatchedBy(func(p integration.ListingPayload) bool { return p.Update })).
		Return("batch-2", nil).Once()
	f.runNext(t, JobKindSubmit)
	assert.Equal(t, "batch-2", f.get(t, id).ExternalBatchID)
	f.marketplace.AssertExpectations(t)
}

func TestSyncService_ArchiveCancelsPendingWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createListing(t, "acc-1")

	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).Return("batch-1", nil).Once()
	_, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	f.runNext(t, JobKindSubmit)

	resp, err := f.service.Archive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusArchived, resp.Status)

	f.runNext(t, JobKindPoll)
	assert.Equal(t, listing.StatusArchived, f.get(t, id).Status)
	f.marketplace.AssertNotCalled(t, "PollBatch", mock.Anything, mock.Anything, mock.Anything)

	_, err = f.service.SyncListing(ctx, id)
	assert.ErrorIs(t, err, listing.ErrListingArchived)
}

func TestSyncService_PollTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.createListing(t, "acc-1")

	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).Return("batch-1", nil).Once()
	f.marketplace.On("PollBatch", mock.Anything, mock.Anything, "batch-1").
		Return(integration.BatchResult{State: integration.BatchStatePending}, nil).Times(3)

	_, err := f.service.SyncListing(context.Background(), id)
	require.NoError(t, err)
	f.runNext(t, JobKindSubmit)
	for i := 0; i < 3; i++ {
		f.runNext(t, JobKindPoll)
	}

	l := f.get(t, id)
	assert.Equal(t, listing.StatusFailed, l.Status)
	assert.Contains(t, l.LastSyncMessage, "timed out")
	assert.Zero(t, f.queue.len())
	f.marketplace.AssertExpectations(t)
}

func TestSyncService_SubmitErrors(t *testing.T) {
	t.Run("rejection fails immediately", func(t *testing.T) {
		f := newFixture(t)
		id := f.createListing(t, "acc-1")
		f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).
			Return("", fmt.Errorf("%w: bad category", integration.ErrMarketplaceRejected)).Once()

		_, err := f.service.SyncListing(context.Background(), id)
		require.NoError(t, err)
		f.runNext(t, JobKindSubmit)

		l := f.get(t, id)
		assert.Equal(t, listing.StatusFailed, l.Status)
		assert.Contains(t, l.LastSyncMessage, "bad category")
		assert.Zero(t, f.queue.len())
	})

	t.Run("transient error is resubmitted", func(t *testing.T) {
		f := newFixture(t)
		id := f.createListing(t, "acc-1")
		f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).
			Return("", integration.ErrMarketplaceUnavailable).Once()
		f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).
			Return("batch-9", nil).Once()

		_, err := f.service.SyncListing(context.Background(), id)
		require.NoError(t, err)
		f.runNext(t, JobKindSubmit)

		l := f.get(t, id)
		assert.Equal(t, listing.StatusPendingCreate, l.Status)
		assert.Equal(t, 1, l.PollAttempts)

		f.runNext(t, JobKindSubmit)
		assert.Equal(t, "batch-9", f.get(t, id).ExternalBatchID)
	})

	t.Run("missing batch id fails", func(t *testing.T) {
		f := newFixture(t)
		id := f.createListing(t, "acc-1")
		f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).Return("", nil).Once()

		_, err := f.service.SyncListing(context.Background(), id)
		require.NoError(t, err)
		f.runNext(t, JobKindSubmit)

		l := f.get(t, id)
		assert.Equal(t, listing.StatusFailed, l.Status)
		assert.Equal(t, listing.MessageMissingBatchID, l.LastSyncMessage)
	})
}

func TestSyncService_SingleFlight(t *testing.T) {
	f := newFixture(t)
	id := f.createListing(t, "acc-1")

	_, err := f.service.SyncListing(context.Background(), id)
	require.NoError(t, err)
	job := f.queue.pop(t)

	f.flights.held[job.FlightKey()] = true
	require.NoError(t, f.service.Execute(context.Background(), job))
	f.marketplace.AssertNotCalled(t, "SubmitListing", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.get(t, id).ExternalBatchID)
}

func TestSyncService_MarkVariantChanged(t *testing.T) {
	t.Run("full update without inventory push", func(t *testing.T) {
		f := newFixture(t)
		id := f.createListing(t, "acc-1")
		f.activate(t, id, "batch-1")

		require.NoError(t, f.service.MarkVariantChanged(context.Background(), f.variant.ID))
		assert.Equal(t, listing.StatusPendingUpdate, f.get(t, id).Status)
		assert.Equal(t, JobKindSubmit, f.queue.pop(t).Kind)
	})

	t.Run("stock push capped by override", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		id := f.createListing(t, "acc-push")
		f.activate(t, id, "batch-1")

		limit := 3
		_, err := f.service.UpdateListing(ctx, id, UpdateListingRequest{StockOverride: &limit})
		require.NoError(t, err)
		f.marketplace.On("PushStock", mock.Anything, pushAccount, mock.MatchedBy(func(u integration.StockUpdate) bool {
			return u.SKU == "SKU-A" && u.Stock == 3
		})).Return("push-1", nil).Once()
		f.runNext(t, JobKindPush)

		l := f.get(t, id)
		assert.Equal(t, listing.StatusActive, l.Status)
		assert.False(t, l.Dirty)

		require.NoError(t, f.service.MarkVariantChanged(ctx, f.variant.ID))
		assert.True(t, f.get(t, id).Dirty)
		f.marketplace.On("PushStock", mock.Anything, pushAccount, mock.Anything).
			Return("", integration.ErrMarketplaceUnavailable).Once()
		f.runNext(t, JobKindPush)
		assert.Equal(t, listing.StatusPendingUpdate, f.get(t, id).Status)
		assert.Equal(t, JobKindSubmit, f.queue.pop(t).Kind)
		f.marketplace.AssertExpectations(t)
	})

	t.Run("change during push is pushed again", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		id := f.createListing(t, "acc-push")
		f.activate(t, id, "batch-1")

		require.NoError(t, f.service.MarkVariantChanged(ctx, f.variant.ID))
		var pushed []int
		f.marketplace.On("PushStock", mock.Anything, pushAccount, mock.MatchedBy(func(u integration.StockUpdate) bool { return u.Stock == 8 })).
			Run(func(args mock.Arguments) {
				pushed = append(pushed, args.Get(2).(integration.StockUpdate).Stock)
				v, err := f.store.Variants.FindByID(ctx, f.variant.ID)
				require.NoError(t, err)
				require.NoError(t, v.AdjustStock(2, ""))
				require.NoError(t, f.store.Variants.SaveWithLock(ctx, v))
				require.NoError(t, f.service.MarkVariantChanged(ctx, f.variant.ID))
			}).
			Return("push-1", nil).Once()
		f.marketplace.On("PushStock", mock.Anything, pushAccount, mock.MatchedBy(func(u integration.StockUpdate) bool { return u.Stock == 2 })).
			Run(func(args mock.Arguments) {
				pushed = append(pushed, args.Get(2).(integration.StockUpdate).Stock)
			}).
			Return("push-2", nil).Once()

		f.drain(t)
		n, err := f.service.Sweep(ctx, 100)
		require.NoError(t, err)
		assert.Zero(t, n)

		l := f.get(t, id)
		assert.Equal(t, []int{8, 2}, pushed)
		assert.False(t, l.Dirty)
		assert.Equal(t, listing.StatusActive, l.Status)
		f.marketplace.AssertExpectations(t)
	})

	t.Run("draft listings ignore changes", func(t *testing.T) {
		f := newFixture(t)
		id := f.createListing(t, "acc-1")

		require.NoError(t, f.service.MarkVariantChanged(context.Background(), f.variant.ID))
		assert.Equal(t, listing.StatusDraft, f.get(t, id).Status)
		assert.Zero(t, f.queue.len())
	})
}

func TestSyncService_EarlyJobFollowsStoredSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createListing(t, "acc-1")

	f.marketplace.On("SubmitListing", mock.Anything, mock.Anything, mock.Anything).Return("batch-1", nil).Once()
	_, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	f.runNext(t, JobKindSubmit)

	poll := f.queue.pop(t)
	scheduled := *f.get(t, id).NextPollAt
	require.True(t, scheduled.After(f.clock.Now()))

	early := poll
	early.NotBefore = f.clock.Now()
	require.NoError(t, f.service.Execute(ctx, early))
	f.marketplace.AssertNotCalled(t, "PollBatch", mock.Anything, mock.Anything, mock.Anything)

	again := f.queue.pop(t)
	assert.Equal(t, JobKindPoll, again.Kind)
	assert.True(t, scheduled.Equal(again.NotBefore))

	f.marketplace.On("PollBatch", mock.Anything, mock.Anything, "batch-1").
		Return(integration.BatchResult{State: integration.BatchStateCompleted, ItemSucceeded: true}, nil).Once()
	f.clock.AdvanceTo(again.NotBefore)
	require.NoError(t, f.service.Execute(ctx, again))
	assert.Equal(t, listing.StatusActive, f.get(t, id).Status)
}

func TestSyncService_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createListing(t, "acc-1")

	_, err := f.service.SyncListing(ctx, id)
	require.NoError(t, err)
	f.queue.pop(t)

	n, err := f.service.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	job := f.queue.pop(t)
	assert.Equal(t, JobKindSubmit, job.Kind)
	assert.Equal(t, id, job.ListingID)
}

func TestVariantChangedHandler(t *testing.T) {
	f := newFixture(t)
	id := f.createListing(t, "acc-1")
	f.activate(t, id, "batch-1")
	handler := NewVariantChangedHandler(f.service, zap.NewNop())

	v, err := f.store.Variants.FindByID(context.Background(), f.variant.ID)
	require.NoError(t, err)
	require.NoError(t, v.AdjustStock(2, ""))
	events := v.PopDomainEvents()
	require.Len(t, events, 1)

	require.NoError(t, handler.Handle(context.Background(), events[0]))
	assert.Equal(t, listing.StatusPendingUpdate, f.get(t, id).Status)

	assert.Error(t, handler.Handle(context.Background(), listing.NewStatusChangedEvent(f.get(t, id), listing.StatusActive)))
}
