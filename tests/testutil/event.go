package testutil

import (
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// TestEvent is a bare domain event for tests that only need an envelope.
type TestEvent struct {
	shared.BaseDomainEvent
}

func NewTestEvent(eventType string) *TestEvent {
	return &TestEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New())}
}
