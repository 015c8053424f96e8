package event

import (
	"context"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDeadLetterPageSize = 20
	maxDeadLetterPageSize     = 100
)

// OutboxService exposes delivery state of the event outbox. Stock
// propagation and listing dirtiness both ride on the outbox, so a dead
// entry means a bundle or listing is stale until it is requeued.
type OutboxService struct {
	repo   shared.OutboxRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewOutboxService creates a new OutboxService
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, now: time.Now, logger: logger}
}

// EntryResponse is an outbox entry without its payload
type EntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DeadLetterQuery pages through dead entries
type DeadLetterQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

func (q DeadLetterQuery) normalized() DeadLetterQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultDeadLetterPageSize
	}
	if q.PageSize > maxDeadLetterPageSize {
		q.PageSize = maxDeadLetterPageSize
	}
	return q
}

// DeadLetterPage is one page of dead entries
type DeadLetterPage struct {
	Entries  []EntryResponse `json:"entries"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// Stats counts entries per delivery status
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// Backlog is the number of entries still owed to a handler.
func (s Stats) Backlog() int64 {
	return s.Pending + s.Processing + s.Failed
}

// Stats returns entry counts per status
func (s *OutboxService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}

	stats := &Stats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// DeadLetters lists entries whose handlers gave up
func (s *OutboxService) DeadLetters(ctx context.Context, q DeadLetterQuery) (*DeadLetterPage, error) {
	q = q.normalized()
	entries, total, err := s.repo.FindDead(ctx, q.Page, q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("find dead outbox entries: %w", err)
	}

	page := &DeadLetterPage{
		Entries:  make([]EntryResponse, len(entries)),
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	for i, e := range entries {
		page.Entries[i] = toEntryResponse(e)
	}
	return page, nil
}

// Requeue puts one dead entry back into the pending queue
func (s *OutboxService) Requeue(ctx context.Context, id uuid.UUID) (*EntryResponse, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find outbox entry: %w", err)
	}
	if err := entry.Requeue(); err != nil {
		return nil, shared.InvalidState(err.Error())
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("requeue outbox entry: %w", err)
	}

	s.logger.Info("outbox entry requeued",
		zap.String("entry_id", id.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
	)
	resp := toEntryResponse(entry)
	return &resp, nil
}

// RequeueAll requeues every dead entry and returns how many moved.
// Entries requeued on an earlier page leave the dead set, so the first page
// is read until it comes back empty or stops shrinking.
func (s *OutboxService) RequeueAll(ctx context.Context) (int64, error) {
	var count int64
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, maxDeadLetterPageSize)
		if err != nil {
			return count, fmt.Errorf("find dead outbox entries: %w", err)
		}
		moved := 0
		for _, entry := range entries {
			if entry.Requeue() != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("failed to requeue outbox entry",
					zap.String("entry_id", entry.ID.String()),
					zap.Error(err),
				)
				continue
			}
			moved++
		}
		count += int64(moved)
		if moved == 0 || len(entries) < maxDeadLetterPageSize {
			break
		}
	}

	if count > 0 {
		s.logger.Info("dead outbox entries requeued", zap.Int64("count", count))
	}
	return count, nil
}

// Purge deletes delivered entries older than retention
func (s *OutboxService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, shared.InvalidInput("Retention must be positive")
	}
	deleted, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	s.logger.Debug("outbox purged", zap.Int64("deleted", deleted), zap.Duration("retention", retention))
	return deleted, nil
}

func toEntryResponse(e *shared.OutboxEntry) EntryResponse {
	return EntryResponse{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
	}
}
