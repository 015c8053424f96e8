package event

import (
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/listing"
)

// RegisterAllEvents registers every event type the outbox may carry.
func RegisterAllEvents(s *EventSerializer) {
	Register[catalog.StockChangedEvent](s, catalog.EventTypeStockChanged)
	Register[catalog.PriceChangedEvent](s, catalog.EventTypePriceChanged)
	Register[catalog.BundleComponentChangedEvent](s, catalog.EventTypeBundleComponentChanged)
	Register[catalog.StockReconciliationRequiredEvent](s, catalog.EventTypeStockReconciliationRequired)

	Register[listing.StatusChangedEvent](s, listing.EventTypeListingStatusChanged)
}
