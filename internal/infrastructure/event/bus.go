package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InMemoryEventBus delivers events to in-process handlers synchronously, in
// subscription order. Publish reports every handler failure so the outbox
// processor can retry the entry.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	logger   *zap.Logger
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger,
	}
}

// anyEventType keys handlers that consume every event type.
const anyEventType = "*"

// Subscribe registers handler for the given event types, or for
// handler.EventTypes() when none are passed. A handler naming no types
// receives everything. Subscribing the same handler twice to a type is a
// no-op.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		eventTypes = []string{anyEventType}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		if containsHandler(b.handlers[et], handler) {
			continue
		}
		b.handlers[et] = append(b.handlers[et], handler)
	}
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Handlers returns the handlers an event of eventType is delivered to.
func (b *InMemoryEventBus) Handlers(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]shared.EventHandler(nil), b.handlers[eventType]...)
	for _, h := range b.handlers[anyEventType] {
		if !containsHandler(out, h) {
			out = append(out, h)
		}
	}
	return out
}

func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, evt := range events {
		for _, h := range b.Handlers(evt.EventType()) {
			if err := b.dispatch(ctx, h, evt); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.String("handler", handlerName(h)),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, h shared.EventHandler, evt shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "event.handle",
		attribute.String("event.type", evt.EventType()),
		attribute.String("event.handler", handlerName(h)),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", handlerName(h), r)
		}
		telemetry.End(span, err)
	}()
	return h.Handle(ctx, evt)
}

func containsHandler(list []shared.EventHandler, h shared.EventHandler) bool {
	for _, existing := range list {
		if existing == h {
			return true
		}
	}
	return false
}

// named is implemented by handlers that carry a stable name.
type named interface {
	Name() string
}

func handlerName(h shared.EventHandler) string {
	if n, ok := h.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)
