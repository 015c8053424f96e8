package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"go.uber.org/zap"
)

// PropagationHandler feeds stock and recipe events into the StockPropagator.
// It runs from the outbox processor, so it sees committed component stock.
type PropagationHandler struct {
	propagator *StockPropagator
	logger     *zap.Logger
}

// NewPropagationHandler creates a new PropagationHandler
func NewPropagationHandler(propagator *StockPropagator, logger *zap.Logger) *PropagationHandler {
	return &PropagationHandler{
		propagator: propagator,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *PropagationHandler) EventTypes() []string {
	return []string{
		catalog.EventTypeStockChanged,
		catalog.EventTypeBundleComponentChanged,
	}
}

// Handle recomputes the bundles affected by the event
func (h *PropagationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *catalog.StockChangedEvent:
		// A bundle's own stock change is the result of propagation.
		if e.Kind == catalog.VariantKindBundle {
			return nil
		}
		changed, err := h.propagator.RecomputeForComponent(ctx, e.VariantID)
		if err != nil {
			return err
		}
		h.logger.Debug("component stock propagated",
			zap.String("variant_id", e.VariantID.String()),
			zap.String("sku", e.SKU),
			zap.Int("bundles_changed", changed),
		)
		return nil

	case *catalog.BundleComponentChangedEvent:
		_, _, err := h.propagator.Recompute(ctx, e.BundleVariantID)
		if errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("bundle vanished before recompute",
				zap.String("bundle_id", e.BundleVariantID.String()),
			)
			return nil
		}
		return err

	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
}

// Ensure PropagationHandler implements shared.EventHandler
var _ shared.EventHandler = (*PropagationHandler)(nil)
