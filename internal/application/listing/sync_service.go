package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFlightTTL bounds how long a crashed worker can hold a listing.
const DefaultFlightTTL = 2 * time.Minute

// SyncService drives listings through their marketplace lifecycle.
//
// State changes happen in short transactions. Remote calls happen between
// them, under a per-listing flight lock, and their results are applied to a
// freshly reloaded listing so that an archive or a new change made during
// the call is never overwritten.
type SyncService struct {
	scope       transaction.Scope
	listings    listing.Repository
	variants    catalog.VariantRepository
	products    catalog.ProductRepository
	marketplace integration.Marketplace
	accounts    integration.AccountRegistry
	queue       JobQueue
	flights     FlightLock
	policy      listing.RetryPolicy
	flightTTL   time.Duration
	attempts    int
	now         func() time.Time
	logger      *zap.Logger
}

// SyncOption configures a SyncService
type SyncOption func(*SyncService)

// WithRetryPolicy sets the poll retry policy
func WithRetryPolicy(p listing.RetryPolicy) SyncOption {
	return func(s *SyncService) { s.policy = p }
}

// WithFlightTTL sets the flight lock expiry
func WithFlightTTL(ttl time.Duration) SyncOption {
	return func(s *SyncService) {
		if ttl > 0 {
			s.flightTTL = ttl
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService creates a new SyncService
func NewSyncService(
	scope transaction.Scope,
	listings listing.Repository,
	variants catalog.VariantRepository,
	products catalog.ProductRepository,
	marketplace integration.Marketplace,
	accounts integration.AccountRegistry,
	queue JobQueue,
	flights FlightLock,
	logger *zap.Logger,
	opts ...SyncOption,
) *SyncService {
	s := &SyncService{
		scope:       scope,
		listings:    listings,
		variants:    variants,
		products:    products,
		marketplace: marketplace,
		accounts:    accounts,
		queue:       queue,
		flights:     flights,
		policy:      listing.DefaultRetryPolicy(),
		flightTTL:   DefaultFlightTTL,
		attempts:    transaction.DefaultConflictAttempts,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetQueue sets the job queue. The queue's workers usually call back into
// Execute, so it is wired after construction.
func (s *SyncService) SetQueue(queue JobQueue) {
	s.queue = queue
}

// CreateListing creates a draft listing of a variant on an account
func (s *SyncService) CreateListing(ctx context.Context, req CreateListingRequest) (*ListingResponse, error) {
	if _, err := s.variants.FindByID(ctx, req.VariantID); err != nil {
		return nil, err
	}
	if _, err := s.accounts.Account(req.AccountID); err != nil {
		return nil, shared.InvalidInput("Unknown marketplace account: " + req.AccountID)
	}

	l, err := listing.NewListing(req.VariantID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if err := l.SetOverrides(req.StockOverride, req.PriceOverride); err != nil {
		return nil, err
	}
	l.SetPlatformMapping(req.PlatformCategoryID, req.PlatformBrandID)

	if err := s.listings.Create(ctx, l); err != nil {
		return nil, err
	}
	resp := ToListingResponse(l)
	return &resp, nil
}

// Get returns a listing by ID
func (s *SyncService) Get(ctx context.Context, id uuid.UUID) (*ListingResponse, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToListingResponse(l)
	return &resp, nil
}

// List returns listings matching the filter
func (s *SyncService) List(ctx context.Context, filter shared.Filter) ([]ListingResponse, int64, error) {
	listings, total, err := s.listings.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return ToListingResponses(listings), total, nil
}

// UpdateListing replaces overrides and platform mapping. A published listing
// is resent.
func (s *SyncService) UpdateListing(ctx context.Context, id uuid.UUID, req UpdateListingRequest) (*ListingResponse, error) {
	var saved *listing.Listing
	jobs, err := s.mutate(ctx, id, func(l *listing.Listing, _ time.Time) ([]Job, error) {
		if l.Status == listing.StatusArchived {
			return nil, listing.ErrListingArchived
		}
		if err := l.SetOverrides(req.StockOverride, req.PriceOverride); err != nil {
			return nil, err
		}
		l.SetPlatformMapping(req.PlatformCategoryID, req.PlatformBrandID)
		saved = l
		if !l.MarkChanged() {
			return nil, nil
		}
		return s.beginCycle(l)
	})
	if err != nil {
		return nil, err
	}
	s.enqueue(ctx, jobs...)
	resp := ToListingResponse(saved)
	return &resp, nil
}

// SyncListing starts a create or update cycle. When a cycle is already
// running the request is recorded on the listing and sent afterwards.
func (s *SyncService) SyncListing(ctx context.Context, id uuid.UUID) (*SyncResponse, error) {
	var (
		saved    *listing.Listing
		deferred bool
	)
	jobs, err := s.mutate(ctx, id, func(l *listing.Listing, now time.Time) ([]Job, error) {
		saved = l
		d, err := l.BeginSubmit(now)
		if errors.Is(err, listing.ErrSubmitInFlight) {
			deferred = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		job, _ := jobFor(l, d)
		return []Job{job}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("listing sync requested",
		zap.String("listing_id", id.String()),
		zap.String("status", string(saved.Status)),
		zap.Bool("deferred", deferred),
	)
	s.enqueue(ctx, jobs...)
	return &SyncResponse{Listing: ToListingResponse(saved), Deferred: deferred}, nil
}

// Archive retires a listing. Jobs already queued for it become no-ops.
func (s *SyncService) Archive(ctx context.Context, id uuid.UUID) (*ListingResponse, error) {
	var saved *listing.Listing
	_, err := s.mutate(ctx, id, func(l *listing.Listing, _ time.Time) ([]Job, error) {
		saved = l
		l.Archive()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing archived", zap.String("listing_id", id.String()))
	resp := ToListingResponse(saved)
	return &resp, nil
}

// MarkVariantChanged flags every listing of the variant and schedules the
// work: a stock push where the account allows it, a full update otherwise.
// Pending listings only keep the flag.
func (s *SyncService) MarkVariantChanged(ctx context.Context, variantID uuid.UUID) error {
	listings, err := s.listings.FindByVariant(ctx, variantID)
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range listings {
		if l.Status == listing.StatusArchived || l.Status == listing.StatusDraft {
			continue
		}
		jobs, err := s.mutate(ctx, l.ID, func(l *listing.Listing, _ time.Time) ([]Job, error) {
			if !l.MarkChanged() {
				return nil, nil
			}
			return s.beginCycle(l)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("mark listing %s changed: %w", l.ID, err))
			continue
		}
		s.enqueue(ctx, jobs...)
	}
	return errors.Join(errs...)
}

// Sweep re-enqueues work that a restart or a full queue may have lost:
// pending listings whose next step is due, and changed listings with no
// cycle running. It returns the number of jobs enqueued.
func (s *SyncService) Sweep(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.listings.FindDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	var jobs []Job
	for _, l := range due {
		if job, ok := jobFor(l, listing.Decision{Action: l.NextAction(), At: now}); ok {
			jobs = append(jobs, job)
		}
	}

	dirty, _, err := s.listings.FindAll(ctx, shared.Filter{Filters: map[string]any{"dirty": true}, PageSize: limit})
	if err != nil {
		return 0, err
	}
	for _, l := range dirty {
		if l.Status != listing.StatusActive && l.Status != listing.StatusFailed {
			continue
		}
		next, err := s.mutate(ctx, l.ID, func(l *listing.Listing, _ time.Time) ([]Job, error) {
			if !l.Dirty || l.Status.IsPending() || l.Status == listing.StatusArchived {
				return nil, nil
			}
			return s.beginCycle(l)
		})
		if err != nil {
			s.logger.Warn("sweep could not resume changed listing",
				zap.String("listing_id", l.ID.String()),
				zap.Error(err),
			)
			continue
		}
		jobs = append(jobs, next...)
	}

	s.enqueue(ctx, jobs...)
	if len(jobs) > 0 {
		s.logger.Info("listing sweep enqueued jobs", zap.Int("jobs", len(jobs)))
	}
	return len(jobs), nil
}

// Execute runs one job. A job whose listing is already in flight is dropped;
// the listing's own state keeps the intent. Follow-up jobs are enqueued after
// the flight lock is released, so a worker picking one up right away is not
// turned back by it.
func (s *SyncService) Execute(ctx context.Context, job Job) error {
	unlock, ok, err := s.flights.TryLock(ctx, job.FlightKey(), s.flightTTL)
	if err != nil {
		return fmt.Errorf("acquire flight lock for listing %s: %w", job.ListingID, err)
	}
	if !ok {
		s.logger.Debug("listing already in flight, job dropped",
			zap.String("listing_id", job.ListingID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return nil
	}

	next, err := func() ([]Job, error) {
		defer unlock()
		switch job.Kind {
		case JobKindSubmit:
			return s.executeSubmit(ctx, job)
		case JobKindPoll:
			return s.executePoll(ctx, job)
		case JobKindPush:
			return s.executePush(ctx, job)
		default:
			return nil, fmt.Errorf("unknown sync job kind %q", job.Kind)
		}
	}()
	s.enqueue(ctx, next...)
	return err
}

func (s *SyncService) executeSubmit(ctx context.Context, job Job) ([]Job, error) {
	l, later, err := s.loadFor(ctx, job, listing.PollActionSubmit)
	if err != nil || l == nil {
		return later, err
	}

	account, payload, callErr := s.prepare(ctx, l)
	var batchID string
	if callErr == nil {
		batchID, callErr = s.marketplace.SubmitListing(ctx, account, payload)
	}

	jobs, err := s.mutate(ctx, l.ID, func(current *listing.Listing, now time.Time) ([]Job, error) {
		if current.NextAction() != listing.PollActionSubmit {
			return nil, nil
		}
		if callErr != nil {
			transient := integration.IsTransient(callErr)
			d := current.RecordSubmitError(callErr.Error(), transient, s.policy, now)
			s.logSubmitError(current, callErr, transient)
			return s.follow(current, d), nil
		}
		d, err := current.RecordBatch(batchID, s.policy, now)
		if err != nil {
			return nil, err
		}
		s.logOutcome(current)
		return s.follow(current, d), nil
	})
	return jobs, err
}

func (s *SyncService) executePoll(ctx context.Context, job Job) ([]Job, error) {
	l, later, err := s.loadFor(ctx, job, listing.PollActionPoll)
	if err != nil || l == nil {
		return later, err
	}

	batchID := l.ExternalBatchID
	account, callErr := s.accounts.Account(l.AccountID)
	var result integration.BatchResult
	if callErr == nil {
		result, callErr = s.marketplace.PollBatch(ctx, account, batchID)
	}

	jobs, err := s.mutate(ctx, l.ID, func(current *listing.Listing, now time.Time) ([]Job, error) {
		if current.NextAction() != listing.PollActionPoll || current.ExternalBatchID != batchID {
			return nil, nil
		}
		var d listing.Decision
		if callErr != nil {
			s.logger.Info("listing poll failed, will retry",
				zap.String("listing_id", current.ID.String()),
				zap.String("batch_id", batchID),
				zap.Int("attempt", current.PollAttempts+1),
				zap.Error(callErr),
			)
			d = current.RecordPollError(callErr.Error(), s.policy, now)
		} else {
			d = current.ApplyPollResult(result, s.policy, now)
		}
		s.logOutcome(current)
		return s.follow(current, d), nil
	})
	return jobs, err
}

func (s *SyncService) executePush(ctx context.Context, job Job) ([]Job, error) {
	l, err := s.listings.FindByID(ctx, job.ListingID)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	if !l.CanPushStock() || !l.Dirty {
		return nil, nil
	}

	// Read before the variant: a change committed after this point bumps it.
	seq := l.ChangeSeq
	var ref string
	account, callErr := s.accounts.Account(l.AccountID)
	if callErr == nil {
		var v *catalog.Variant
		v, callErr = s.variants.FindByID(ctx, l.VariantID)
		if callErr == nil {
			ref, callErr = s.marketplace.PushStock(ctx, account, listing.BuildStockUpdate(l, v))
		}
	}

	jobs, err := s.mutate(ctx, l.ID, func(current *listing.Listing, now time.Time) ([]Job, error) {
		if !current.CanPushStock() || !current.Dirty {
			return nil, nil
		}
		if callErr != nil {
			// Fall back to a full update, which carries its own retry bound.
			s.logger.Warn("listing stock push failed, falling back to full update",
				zap.String("listing_id", current.ID.String()),
				zap.Error(callErr),
			)
			d, err := current.BeginSubmit(now)
			if err != nil {
				return nil, err
			}
			return s.follow(current, d), nil
		}
		if !current.MarkPushed(seq, now) {
			s.logger.Debug("listing changed during stock push, pushing again",
				zap.String("listing_id", current.ID.String()),
				zap.String("ref", ref),
			)
			return s.beginCycle(current)
		}
		s.logger.Debug("listing stock pushed",
			zap.String("listing_id", current.ID.String()),
			zap.String("ref", ref),
		)
		return nil, nil
	})
	return jobs, err
}

// loadFor loads the job's listing when it still waits for action and is due.
// A job that fires before the listing's stored schedule is returned as a job
// for that time instead, since the queue may hold no other.
func (s *SyncService) loadFor(ctx context.Context, job Job, action listing.PollAction) (*listing.Listing, []Job, error) {
	l, err := s.listings.FindByID(ctx, job.ListingID)
	if err != nil {
		return nil, nil, ignoreNotFound(err)
	}
	if l.NextAction() != action {
		s.logger.Debug("stale sync job dropped",
			zap.String("listing_id", l.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("status", string(l.Status)),
		)
		return nil, nil, nil
	}
	if l.NextPollAt != nil && l.NextPollAt.After(s.now()) {
		job.NotBefore = *l.NextPollAt
		return nil, []Job{job}, nil
	}
	return l, nil, nil
}

// prepare resolves the account and builds the full payload
func (s *SyncService) prepare(ctx context.Context, l *listing.Listing) (integration.Account, integration.ListingPayload, error) {
	account, err := s.accounts.Account(l.AccountID)
	if err != nil {
		return integration.Account{}, integration.ListingPayload{}, err
	}
	v, err := s.variants.FindByID(ctx, l.VariantID)
	if err != nil {
		return integration.Account{}, integration.ListingPayload{}, err
	}
	p, err := s.products.FindByID(ctx, v.ProductID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return integration.Account{}, integration.ListingPayload{}, err
	}
	return account, listing.BuildPayload(l, v, p), nil
}

// beginCycle schedules the work for a changed listing: a push when the
// account allows direct inventory updates, otherwise a full update cycle.
func (s *SyncService) beginCycle(l *listing.Listing) ([]Job, error) {
	if l.CanPushStock() {
		if account, err := s.accounts.Account(l.AccountID); err == nil && account.PushInventory {
			return []Job{{Kind: JobKindPush, ListingID: l.ID, AccountID: l.AccountID, NotBefore: s.now()}}, nil
		}
	}
	d, err := l.BeginSubmit(s.now())
	if errors.Is(err, listing.ErrSubmitInFlight) || errors.Is(err, listing.ErrListingArchived) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.follow(l, d), nil
}

func (s *SyncService) follow(l *listing.Listing, d listing.Decision) []Job {
	if job, ok := jobFor(l, d); ok {
		return []Job{job}
	}
	return nil
}

// mutate reloads the listing in a transaction, applies fn, saves and records
// its events. Version conflicts are retried with a fresh copy.
func (s *SyncService) mutate(ctx context.Context, id uuid.UUID, fn func(l *listing.Listing, now time.Time) ([]Job, error)) ([]Job, error) {
	var jobs []Job
	err := transaction.RetryOnConflict(ctx, s.attempts, func() error {
		return s.scope.Execute(ctx, func(repos transaction.Repositories) error {
			l, err := repos.Listings().FindByID(ctx, id)
			if err != nil {
				return err
			}
			loadedAt := l.UpdatedAt
			jobs, err = fn(l, s.now())
			if err != nil {
				return err
			}
			if l.UpdatedAt.Equal(loadedAt) && len(l.GetDomainEvents()) == 0 {
				return nil
			}
			if err := repos.Listings().SaveWithLock(ctx, l); err != nil {
				return err
			}
			return repos.Events().Record(ctx, l.PopDomainEvents()...)
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *SyncService) enqueue(ctx context.Context, jobs ...Job) {
	if s.queue == nil {
		return
	}
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			// The sweep picks the listing up again from its stored schedule.
			s.logger.Warn("failed to enqueue sync job",
				zap.String("listing_id", job.ListingID.String()),
				zap.String("kind", string(job.Kind)),
				zap.Error(err),
			)
		}
	}
}

func (s *SyncService) logSubmitError(l *listing.Listing, err error, transient bool) {
	if transient {
		s.logger.Info("listing submit failed, will retry",
			zap.String("listing_id", l.ID.String()),
			zap.Int("attempt", l.PollAttempts),
			zap.Error(err),
		)
		return
	}
	s.logger.Error("listing rejected by marketplace",
		zap.String("listing_id", l.ID.String()),
		zap.String("account_id", l.AccountID),
		zap.Error(err),
	)
}

func (s *SyncService) logOutcome(l *listing.Listing) {
	switch l.Status {
	case listing.StatusActive:
		s.logger.Info("listing active",
			zap.String("listing_id", l.ID.String()),
			zap.String("account_id", l.AccountID),
		)
	case listing.StatusFailed:
		s.logger.Error("listing failed",
			zap.String("listing_id", l.ID.String()),
			zap.String("account_id", l.AccountID),
			zap.String("message", l.LastSyncMessage),
		)
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}
