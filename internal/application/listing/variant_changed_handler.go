package listing

import (
	"context"
	"fmt"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VariantChangedHandler marks listings dirty when their variant's stock or
// price changes. Bundle stock changes arrive here too, after propagation.
type VariantChangedHandler struct {
	sync   *SyncService
	logger *zap.Logger
}

// NewVariantChangedHandler creates a new VariantChangedHandler
func NewVariantChangedHandler(sync *SyncService, logger *zap.Logger) *VariantChangedHandler {
	return &VariantChangedHandler{sync: sync, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *VariantChangedHandler) EventTypes() []string {
	return []string{
		catalog.EventTypeStockChanged,
		catalog.EventTypePriceChanged,
	}
}

// Handle schedules a sync for every listing of the changed variant
func (h *VariantChangedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var variantID uuid.UUID
	switch e := event.(type) {
	case *catalog.StockChangedEvent:
		variantID = e.VariantID
	case *catalog.PriceChangedEvent:
		variantID = e.VariantID
	default:
		return fmt.Errorf("unexpected event type %T", event)
	}

	if err := h.sync.MarkVariantChanged(ctx, variantID); err != nil {
		return err
	}
	h.logger.Debug("variant change forwarded to listings",
		zap.String("variant_id", variantID.String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}
