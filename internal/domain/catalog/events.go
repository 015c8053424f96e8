package catalog

import (
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeVariant = "Variant"

// Event type constants
const (
	EventTypeStockChanged                = "StockChanged"
	EventTypePriceChanged                = "PriceChanged"
	EventTypeBundleComponentChanged      = "BundleComponentChanged"
	EventTypeStockReconciliationRequired = "StockReconciliationRequired"
)

// StockChangedEvent is published whenever a variant's stored stock changes,
// whether set by hand, decremented by an order, or recomputed for a bundle.
type StockChangedEvent struct {
	shared.BaseDomainEvent
	VariantID uuid.UUID   `json:"variant_id"`
	SKU       string      `json:"sku"`
	Kind      VariantKind `json:"kind"`
	OldStock  int         `json:"old_stock"`
	NewStock  int         `json:"new_stock"`
	Reason    string      `json:"reason"`
}

// NewStockChangedEvent creates a new StockChangedEvent
func NewStockChangedEvent(v *Variant, oldStock int, reason string) *StockChangedEvent {
	return &StockChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockChanged, AggregateTypeVariant, v.ID),
		VariantID:       v.ID,
		SKU:             v.SKU,
		Kind:            v.Kind,
		OldStock:        oldStock,
		NewStock:        v.Stock,
		Reason:          reason,
	}
}

// PriceChangedEvent is published when a variant's selling price changes
type PriceChangedEvent struct {
	shared.BaseDomainEvent
	VariantID uuid.UUID       `json:"variant_id"`
	SKU       string          `json:"sku"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
}

// NewPriceChangedEvent creates a new PriceChangedEvent
func NewPriceChangedEvent(v *Variant, oldPrice decimal.Decimal) *PriceChangedEvent {
	return &PriceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriceChanged, AggregateTypeVariant, v.ID),
		VariantID:       v.ID,
		SKU:             v.SKU,
		OldPrice:        oldPrice,
		NewPrice:        v.Price,
	}
}

// BundleComponentChangedEvent is published when a bundle's recipe is edited.
type BundleComponentChangedEvent struct {
	shared.BaseDomainEvent
	BundleVariantID     uuid.UUID   `json:"bundle_variant_id"`
	ComponentVariantIDs []uuid.UUID `json:"component_variant_ids"`
}

// NewBundleComponentChangedEvent creates a new BundleComponentChangedEvent
func NewBundleComponentChangedEvent(bundleID uuid.UUID, componentIDs []uuid.UUID) *BundleComponentChangedEvent {
	return &BundleComponentChangedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeBundleComponentChanged, AggregateTypeVariant, bundleID),
		BundleVariantID:     bundleID,
		ComponentVariantIDs: componentIDs,
	}
}

// StockReconciliationRequiredEvent is published when an order asked for more
// units than were on hand and stock was clamped at zero.
type StockReconciliationRequiredEvent struct {
	shared.BaseDomainEvent
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Shortfall int       `json:"shortfall"`
	Reference string    `json:"reference"`
}

// NewStockReconciliationRequiredEvent creates a new StockReconciliationRequiredEvent
func NewStockReconciliationRequiredEvent(v *Variant, out DecrementOutcome, ref string) *StockReconciliationRequiredEvent {
	return &StockReconciliationRequiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReconciliationRequired, AggregateTypeVariant, v.ID),
		VariantID:       v.ID,
		SKU:             v.SKU,
		Requested:       out.Requested,
		Available:       out.Before,
		Shortfall:       out.Shortfall,
		Reference:       ref,
	}
}
