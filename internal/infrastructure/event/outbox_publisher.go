package event

import (
	"context"
	"fmt"

	"github.com/bundlesync/engine/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes recorded events to the outbox table inside the
// transaction that changed the aggregates.
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

type PublisherOption func(*OutboxPublisher)

// WithMaxRetries sets how many failed deliveries an entry gets before it is
// dead-lettered.
func WithMaxRetries(n int) PublisherOption {
	return func(p *OutboxPublisher) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

func NewOutboxPublisher(serializer *EventSerializer, opts ...PublisherOption) *OutboxPublisher {
	p := &OutboxPublisher{serializer: serializer, maxRetries: shared.DefaultMaxRetries}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SaveEvents stores events through tx, which must be the *gorm.DB of the
// surrounding transaction.
func (p *OutboxPublisher) SaveEvents(ctx context.Context, tx any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	db, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox publisher needs a *gorm.DB transaction, got %T", tx)
	}

	entries := make([]*shared.OutboxEntry, len(events))
	for i, evt := range events {
		payload, err := p.serializer.Serialize(evt)
		if err != nil {
			return err
		}
		entries[i] = shared.NewOutboxEntry(evt, payload)
		entries[i].MaxRetries = p.maxRetries
	}
	return NewGormOutboxRepository(db).Save(ctx, entries...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
