package listing

import (
	"fmt"
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the sync status of a marketplace listing
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingCreate Status = "pending_create"
	StatusPendingUpdate Status = "pending_update"
	StatusActive        Status = "active"
	StatusFailed        Status = "failed"
	StatusArchived      Status = "archived"
)

// IsPending reports whether a remote batch is outstanding.
func (s Status) IsPending() bool {
	return s == StatusPendingCreate || s == StatusPendingUpdate
}

// Messages recorded on failure.
const (
	MessageMissingBatchID = "marketplace did not return a batch id"
	messageTimeoutFormat  = "timed out waiting for marketplace after %d attempts"
)

// Listing is a variant published to one marketplace account.
//
// Every remote operation runs as a submit followed by polls of the returned
// batch. While a batch is pending, further changes only set Dirty; the next
// cycle starts when the current one reaches Active or Failed. ChangeSeq
// counts changes, so a push can tell whether it sent the latest one.
type Listing struct {
	shared.BaseAggregateRoot
	VariantID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_listing_variant_account,priority:1"`
	AccountID          string           `gorm:"type:varchar(64);not null;uniqueIndex:idx_listing_variant_account,priority:2"`
	Status             Status           `gorm:"type:varchar(20);not null;default:'draft';index"`
	ExternalBatchID    string           `gorm:"type:varchar(128)"`
	LastSyncMessage    string           `gorm:"type:text"`
	StockOverride      *int             `gorm:"column:stock_override"`
	PriceOverride      *decimal.Decimal `gorm:"type:decimal(18,2)"`
	PlatformCategoryID string           `gorm:"type:varchar(64)"`
	PlatformBrandID    string           `gorm:"type:varchar(64)"`
	Published          bool             `gorm:"not null;default:false"`
	Dirty              bool             `gorm:"not null;default:false"`
	ChangeSeq          int64            `gorm:"not null;default:0"`
	PollAttempts       int              `gorm:"not null;default:0"`
	NextPollAt         *time.Time       `gorm:"index"`
	LastSyncedAt       *time.Time       `gorm:"column:last_synced_at"`
}

// TableName returns the table name for GORM
func (Listing) TableName() string {
	return "listings"
}

// NewListing creates a draft listing of variantID on accountID.
func NewListing(variantID uuid.UUID, accountID string) (*Listing, error) {
	if variantID == uuid.Nil {
		return nil, shared.InvalidInput("Variant ID is required")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, shared.InvalidInput("Account ID is required")
	}
	return &Listing{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		VariantID:         variantID,
		AccountID:         accountID,
		Status:            StatusDraft,
	}, nil
}

// SetOverrides sets the listing-level stock cap and price.
func (l *Listing) SetOverrides(stock *int, price *decimal.Decimal) error {
	if stock != nil && *stock < 0 {
		return shared.InvalidInput("Stock override cannot be negative")
	}
	if price != nil && !price.IsPositive() {
		return shared.InvalidInput("Price override must be positive")
	}
	l.StockOverride = stock
	l.PriceOverride = price
	l.touch()
	return nil
}

// SetPlatformMapping sets the marketplace category and brand identifiers.
func (l *Listing) SetPlatformMapping(categoryID, brandID string) {
	l.PlatformCategoryID = strings.TrimSpace(categoryID)
	l.PlatformBrandID = strings.TrimSpace(brandID)
	l.touch()
}

// BeginSubmit starts a create or update cycle.
//
// A listing that is already pending keeps its current cycle, sets Dirty and
// returns ErrSubmitInFlight. An archived listing returns ErrListingArchived.
func (l *Listing) BeginSubmit(now time.Time) (Decision, error) {
	var next Status
	switch l.Status {
	case StatusArchived:
		return Decision{Action: PollActionNone}, ErrListingArchived
	case StatusPendingCreate, StatusPendingUpdate:
		l.setDirty()
		return Decision{Action: PollActionNone}, ErrSubmitInFlight
	case StatusDraft:
		next = StatusPendingCreate
	case StatusActive:
		next = StatusPendingUpdate
	case StatusFailed:
		next = StatusPendingCreate
		if l.Published {
			next = StatusPendingUpdate
		}
	default:
		return Decision{}, shared.InvalidState(fmt.Sprintf("Unknown listing status %q", l.Status))
	}

	l.Dirty = false
	l.PollAttempts = 0
	l.ExternalBatchID = ""
	l.NextPollAt = &now
	l.transition(next, l.LastSyncMessage)
	return Decision{Action: PollActionSubmit, At: now}, nil
}

// IsUpdate reports whether the current cycle updates an existing remote product.
func (l *Listing) IsUpdate() bool {
	return l.Status == StatusPendingUpdate
}

// NextAction tells a sweeper what the listing is waiting for.
func (l *Listing) NextAction() PollAction {
	if !l.Status.IsPending() {
		return PollActionNone
	}
	if l.ExternalBatchID == "" {
		return PollActionSubmit
	}
	return PollActionPoll
}

// RecordBatch stores the batch returned by a submit and schedules the first
// poll. An empty batch ID fails the listing.
func (l *Listing) RecordBatch(batchID string, policy RetryPolicy, now time.Time) (Decision, error) {
	if !l.Status.IsPending() {
		return Decision{Action: PollActionNone}, shared.InvalidState("Listing has no submission in progress")
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return l.fail(MessageMissingBatchID, now), nil
	}

	at := now.Add(policy.InitialPollDelay)
	l.ExternalBatchID = batchID
	l.PollAttempts = 0
	l.NextPollAt = &at
	l.touch()
	return Decision{Action: PollActionPoll, At: at}, nil
}

// RecordSubmitError handles a failed submit. Transient errors are retried
// under the same bound as polls; anything else fails the listing.
func (l *Listing) RecordSubmitError(message string, transient bool, policy RetryPolicy, now time.Time) Decision {
	if !l.Status.IsPending() {
		return Decision{Action: PollActionNone}
	}
	if !transient {
		return l.fail(message, now)
	}
	return l.retry(PollActionSubmit, message, policy, now)
}

// ApplyPollResult moves the listing according to a batch status.
func (l *Listing) ApplyPollResult(result integration.BatchResult, policy RetryPolicy, now time.Time) Decision {
	if !l.Status.IsPending() {
		return Decision{Action: PollActionNone}
	}

	switch result.State {
	case integration.BatchStateCompleted:
		if result.ItemSucceeded {
			return l.activate(now)
		}
		return l.fail(result.FailureMessage(), now)
	case integration.BatchStateFailed:
		return l.fail(result.FailureMessage(), now)
	default:
		return l.retry(PollActionPoll, "", policy, now)
	}
}

// RecordPollError counts a transport failure of a poll against the retry bound.
func (l *Listing) RecordPollError(message string, policy RetryPolicy, now time.Time) Decision {
	if !l.Status.IsPending() {
		return Decision{Action: PollActionNone}
	}
	return l.retry(PollActionPoll, message, policy, now)
}

// Archive retires the listing and reports whether anything changed. Queued
// submits and polls become no-ops.
func (l *Listing) Archive() bool {
	if l.Status == StatusArchived {
		return false
	}
	l.Dirty = false
	l.NextPollAt = nil
	l.transition(StatusArchived, l.LastSyncMessage)
	return true
}

// MarkChanged records that the listed variant's stock or price changed and
// reports whether a sync should be scheduled now. A pending listing keeps the
// flag until its cycle ends. Draft and archived listings ignore changes.
func (l *Listing) MarkChanged() bool {
	switch l.Status {
	case StatusActive, StatusFailed:
		l.setDirty()
		return true
	case StatusPendingCreate, StatusPendingUpdate:
		l.setDirty()
	}
	return false
}

// MarkPushed records a price-and-stock push built while ChangeSeq was seq.
// It returns false, leaving Dirty set, when a change arrived since then.
func (l *Listing) MarkPushed(seq int64, now time.Time) bool {
	l.LastSyncedAt = &now
	l.touch()
	if l.ChangeSeq != seq {
		return false
	}
	l.Dirty = false
	return true
}

// CanPushStock reports whether a price-and-stock push may replace a full update.
func (l *Listing) CanPushStock() bool {
	return l.Status == StatusActive && l.Published
}

func (l *Listing) activate(now time.Time) Decision {
	l.Published = true
	l.PollAttempts = 0
	l.NextPollAt = nil
	l.LastSyncedAt = &now
	l.transition(StatusActive, "")
	return l.resumeDeferred(now)
}

func (l *Listing) fail(message string, now time.Time) Decision {
	l.PollAttempts = 0
	l.NextPollAt = nil
	l.LastSyncedAt = &now
	l.transition(StatusFailed, message)
	return l.resumeDeferred(now)
}

func (l *Listing) retry(action PollAction, message string, policy RetryPolicy, now time.Time) Decision {
	l.PollAttempts++
	if l.PollAttempts > policy.MaxRetries {
		return l.fail(fmt.Sprintf(messageTimeoutFormat, l.PollAttempts), now)
	}
	at := now.Add(policy.Delay(l.PollAttempts))
	l.NextPollAt = &at
	if message != "" {
		l.LastSyncMessage = message
	}
	l.touch()
	return Decision{Action: action, At: at}
}

// resumeDeferred starts the cycle for a change that arrived while pending.
func (l *Listing) resumeDeferred(now time.Time) Decision {
	if !l.Dirty {
		return Decision{Action: PollActionNone}
	}
	d, err := l.BeginSubmit(now)
	if err != nil {
		return Decision{Action: PollActionNone}
	}
	return d
}

func (l *Listing) transition(next Status, message string) {
	old := l.Status
	l.Status = next
	l.LastSyncMessage = message
	l.touch()
	if old != next {
		l.AddDomainEvent(NewStatusChangedEvent(l, old))
	}
}

func (l *Listing) setDirty() {
	l.Dirty = true
	l.ChangeSeq++
	l.touch()
}

func (l *Listing) touch() {
	l.UpdatedAt = time.Now()
}
