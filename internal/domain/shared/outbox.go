package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	// MaxOutboxBackoff caps the wait between two delivery attempts.
	MaxOutboxBackoff = 5 * time.Minute
)

var (
	ErrOutboxNotDead        = errors.New("outbox entry is not dead-lettered")
	ErrOutboxNotClaimed     = errors.New("outbox entry is not claimed")
	ErrOutboxNotDeliverable = errors.New("outbox entry is not deliverable")
)

// OutboxEntry is a serialized domain event waiting for delivery to the
// in-process handlers. Entries are written in the same transaction as the
// aggregate change that raised the event.
type OutboxEntry struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string       `gorm:"type:varchar(100);not null"`
	AggregateID   uuid.UUID    `gorm:"type:uuid;not null"`
	AggregateType string       `gorm:"type:varchar(50);not null"`
	Payload       []byte       `gorm:"type:jsonb;not null"`
	Status        OutboxStatus `gorm:"type:varchar(20);not null;index"`
	RetryCount    int          `gorm:"not null;default:0"`
	MaxRetries    int          `gorm:"not null;default:5"`
	LastError     string       `gorm:"type:text"`
	NextRetryAt   *time.Time
	ClaimedAt     *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OutboxEntry) TableName() string {
	return "outbox_entries"
}

func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Due reports whether a worker may claim the entry at now.
func (e *OutboxEntry) Due(now time.Time) bool {
	switch e.Status {
	case OutboxStatusPending:
		return true
	case OutboxStatusFailed:
		return e.RetryCount < e.MaxRetries && (e.NextRetryAt == nil || !e.NextRetryAt.After(now))
	}
	return false
}

// Claim moves a due entry to PROCESSING.
func (e *OutboxEntry) Claim(now time.Time) error {
	if !e.Due(now) {
		return ErrOutboxNotDeliverable
	}
	e.Status = OutboxStatusProcessing
	e.ClaimedAt = &now
	e.UpdatedAt = now
	return nil
}

func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ClaimedAt = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed attempt. The entry is scheduled again with
// exponential backoff or dead-lettered once MaxRetries attempts failed.
func (e *OutboxEntry) MarkFailed(reason string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = reason
	e.ClaimedAt = nil
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(ExponentialBackoff(DefaultBaseBackoff, MaxOutboxBackoff, e.RetryCount))
	e.NextRetryAt = &next
}

// Abandon fails a PROCESSING entry whose worker never reported back.
// It counts as an attempt so a handler that kills the process cannot loop forever.
func (e *OutboxEntry) Abandon(claimTimeout time.Duration) error {
	if e.Status != OutboxStatusProcessing {
		return ErrOutboxNotClaimed
	}
	e.MarkFailed("claim expired after " + claimTimeout.String())
	return nil
}

// Requeue puts a dead-lettered entry back in front of the workers with a
// fresh retry budget.
func (e *OutboxEntry) Requeue() error {
	if e.Status != OutboxStatusDead {
		return ErrOutboxNotDead
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.ClaimedAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// ExponentialBackoff returns base·2^(attempt-1), capped at max when max > 0.
// Attempt numbering starts at 1; lower values are treated as 1.
func ExponentialBackoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if max > 0 && (d > max || d <= 0) {
		return max
	}
	return d
}

// OutboxRepository persists outbox entries.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindPending lists PENDING entries oldest first without claiming them.
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// ClaimBatch atomically moves up to limit due entries to PROCESSING and
	// returns them. Concurrent callers never receive the same entry.
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	// FindStale lists PROCESSING entries claimed before the cutoff.
	FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan removes SENT entries processed before the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
