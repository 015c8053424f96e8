package event

import (
	"context"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotentHandler runs the wrapped handler at most once per event.
//
// The claim key is "<name>:<event id>", so two handlers consuming the same
// event type keep separate claims. A failed run releases its claim and the
// next outbox retry gets another go.
type IdempotentHandler struct {
	name    string
	handler shared.EventHandler
	store   shared.IdempotencyStore
	ttl     time.Duration
	logger  *zap.Logger
}

type IdempotentHandlerOption func(*IdempotentHandler)

// WithClaimTTL sets how long a successful claim suppresses redelivery.
func WithClaimTTL(ttl time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

func NewIdempotentHandler(name string, handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		name:    name,
		handler: handler,
		store:   store,
		ttl:     shared.DefaultClaimTTL,
		logger:  logger.With(zap.String("handler", name)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) Name() string { return h.name }

func (h *IdempotentHandler) EventTypes() []string { return h.handler.EventTypes() }

func (h *IdempotentHandler) key(evt shared.DomainEvent) string {
	return h.name + ":" + evt.EventID().String()
}

func (h *IdempotentHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	key := h.key(evt)
	claimed, err := h.store.Claim(ctx, key, h.ttl)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", evt.EventID().String()),
			zap.String("event_type", evt.EventType()),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, evt); err != nil {
		// the claim must not outlive a failed run or the retry is swallowed
		if relErr := h.store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			h.logger.Error("failed to release idempotency claim",
				zap.String("key", key),
				zap.Error(relErr),
			)
		}
		return err
	}
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
