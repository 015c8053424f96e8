package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bundlesync/engine/internal/domain/shared"
)

// EventSerializer encodes events as JSON and decodes outbox payloads back
// into their concrete types.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// Register binds eventType to the concrete event struct T.
//
//	event.Register[catalog.StockChangedEvent](s, catalog.EventTypeStockChanged)
func Register[T any, P interface {
	*T
	shared.DomainEvent
}](s *EventSerializer, eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = func() shared.DomainEvent { return P(new(T)) }
}

func (s *EventSerializer) Serialize(evt shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into the type registered for eventType and checks
// the payload really carries that type.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	evt := factory()
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if evt.EventType() != eventType {
		return nil, fmt.Errorf("payload carries event type %q, want %q", evt.EventType(), eventType)
	}
	return evt, nil
}

func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// RegisteredTypes returns the registered event types, sorted.
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
