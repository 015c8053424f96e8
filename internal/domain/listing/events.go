package listing

import (
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeListing = "Listing"

// Event type constants
const (
	EventTypeListingStatusChanged = "ListingStatusChanged"
)

// StatusChangedEvent is published on every listing status transition
type StatusChangedEvent struct {
	shared.BaseDomainEvent
	ListingID uuid.UUID `json:"listing_id"`
	VariantID uuid.UUID `json:"variant_id"`
	AccountID string    `json:"account_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Message   string    `json:"message,omitempty"`
}

// NewStatusChangedEvent creates a new StatusChangedEvent
func NewStatusChangedEvent(l *Listing, old Status) *StatusChangedEvent {
	return &StatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListingStatusChanged, AggregateTypeListing, l.ID),
		ListingID:       l.ID,
		VariantID:       l.VariantID,
		AccountID:       l.AccountID,
		OldStatus:       old,
		NewStatus:       l.Status,
		Message:         l.LastSyncMessage,
	}
}
