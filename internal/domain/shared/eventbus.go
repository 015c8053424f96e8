package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by an aggregate. Events travel through the
// outbox as JSON, so implementations must round-trip through encoding/json.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// BaseDomainEvent carries the envelope every event shares. Embed it and add
// the payload fields.
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
}

func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggID,
		AggType:   aggType,
	}
}

func (e BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseDomainEvent) EventType() string      { return e.Type }
func (e BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e BaseDomainEvent) AggregateType() string  { return e.AggType }

// EventHandler reacts to delivered domain events. EventTypes lists the
// types it consumes; an empty list means every type.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher hands events to their consumers. A non-nil error means at
// least one consumer failed and the delivery must be retried.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// OutboxEventSaver writes events to the outbox inside the caller's
// transaction; tx is the *gorm.DB that transaction runs on.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx any, events ...DomainEvent) error
}
