package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/domain/integration"
	"go.uber.org/zap"
)

// DefaultLookback is how far back each pull asks the feed for orders.
const DefaultLookback = 24 * time.Hour

// PullService pulls recent order lines from every marketplace account and
// feeds them to the IngestionService. It backs up webhooks: lines already
// applied come back as AlreadyApplied.
type PullService struct {
	ingestion *IngestionService
	feed      integration.OrderFeed
	accounts  integration.AccountRegistry
	lookback  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// PullOption configures a PullService
type PullOption func(*PullService)

// WithLookback sets the pull window
func WithLookback(d time.Duration) PullOption {
	return func(s *PullService) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) PullOption {
	return func(s *PullService) { s.now = now }
}

// NewPullService creates a new PullService
func NewPullService(
	ingestion *IngestionService,
	feed integration.OrderFeed,
	accounts integration.AccountRegistry,
	logger *zap.Logger,
	opts ...PullOption,
) *PullService {
	s := &PullService{
		ingestion: ingestion,
		feed:      feed,
		accounts:  accounts,
		lookback:  DefaultLookback,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pull fetches and applies the lookback window for every account. An account
// whose feed fails is skipped and its error joined into the result.
func (s *PullService) Pull(ctx context.Context) (BatchOutcome, error) {
	until := s.now()
	since := until.Add(-s.lookback)

	var (
		total BatchOutcome
		errs  []error
	)
	for _, account := range s.accounts.Accounts() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := s.pullAccount(ctx, account, since, until)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total.merge(batch)
	}
	return total, errors.Join(errs...)
}

func (s *PullService) pullAccount(ctx context.Context, account integration.Account, since, until time.Time) (BatchOutcome, error) {
	lines, err := s.feed.FetchOrders(ctx, account, since, until)
	if err != nil {
		s.logger.Error("order pull failed",
			zap.String("account_id", account.AccountID),
			zap.Error(err),
		)
		return BatchOutcome{}, fmt.Errorf("pull orders for account %s: %w", account.AccountID, err)
	}

	batch := s.ingestion.ApplyBatch(ctx, lines)
	s.logger.Info("order pull completed",
		zap.String("account_id", account.AccountID),
		zap.Time("since", since),
		zap.Int("lines", len(lines)),
		zap.Int("applied", batch.Applied),
		zap.Int("already_applied", batch.AlreadyApplied),
		zap.Int("sku_unknown", batch.SkuUnknown),
		zap.Int("failed", batch.Failed),
	)
	return batch, nil
}
