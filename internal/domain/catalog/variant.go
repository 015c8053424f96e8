package catalog

import (
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VariantKind distinguishes stock-holding variants from derived bundles.
type VariantKind string

const (
	VariantKindSimple VariantKind = "simple"
	VariantKindBundle VariantKind = "bundle"
)

// DefaultVATRate is the VAT percentage applied when none is given.
const DefaultVATRate = 21

// Stock change reasons carried on StockChanged events.
const (
	StockReasonManual     = "manual_adjustment"
	StockReasonOrder      = "order_line"
	StockReasonPropagated = "propagated"
)

// Variant is a sellable unit with its own stock and price.
//
// Simple variants hold physical stock. Bundle variants hold a cached copy of
// the stock their recipe allows, written only by ApplyDerivedStock.
type Variant struct {
	shared.BaseAggregateRoot
	ProductID uuid.UUID        `gorm:"type:uuid;not null;index"`
	SKU       string           `gorm:"type:varchar(100);not null;uniqueIndex"`
	Barcode   string           `gorm:"type:varchar(64);index"`
	Kind      VariantKind      `gorm:"type:varchar(10);not null"`
	Stock     int              `gorm:"not null;default:0"`
	Price     decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0"`
	ListPrice *decimal.Decimal `gorm:"type:decimal(18,2)"`
	VATRate   int              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Variant) TableName() string {
	return "variants"
}

// DecrementOutcome describes what a decrement actually did to stock.
type DecrementOutcome struct {
	Requested int
	Before    int
	After     int
	Shortfall int
}

// Clamped reports whether the request exceeded available stock.
func (o DecrementOutcome) Clamped() bool {
	return o.Shortfall > 0
}

// NewSimpleVariant creates a stock-holding variant.
func NewSimpleVariant(productID uuid.UUID, sku string, price decimal.Decimal, stock int) (*Variant, error) {
	if stock < 0 {
		return nil, shared.InvalidInput("Stock cannot be negative")
	}
	v, err := newVariant(productID, sku, price, VariantKindSimple)
	if err != nil {
		return nil, err
	}
	v.Stock = stock
	return v, nil
}

// NewBundleVariant creates a bundle variant with zero stock. Its stock is set
// by the propagator once components are attached.
func NewBundleVariant(productID uuid.UUID, sku string, price decimal.Decimal) (*Variant, error) {
	return newVariant(productID, sku, price, VariantKindBundle)
}

func newVariant(productID uuid.UUID, sku string, price decimal.Decimal, kind VariantKind) (*Variant, error) {
	if productID == uuid.Nil {
		return nil, shared.InvalidInput("Product ID is required")
	}
	sku = NormalizeSKU(sku)
	if err := validateSKU(sku); err != nil {
		return nil, err
	}
	if price.IsNegative() {
		return nil, shared.InvalidInput("Price cannot be negative")
	}
	return &Variant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		SKU:               sku,
		Kind:              kind,
		Price:             price.Round(2),
		VATRate:           DefaultVATRate,
	}, nil
}

// IsBundle reports whether the variant's stock is derived.
func (v *Variant) IsBundle() bool {
	return v.Kind == VariantKindBundle
}

// AdjustStock sets a simple variant's stock to an absolute value.
func (v *Variant) AdjustStock(stock int, reason string) error {
	if v.IsBundle() {
		return ErrDerivedStock
	}
	if stock < 0 {
		return shared.InvalidInput("Stock cannot be negative")
	}
	if stock == v.Stock {
		return nil
	}
	if reason == "" {
		reason = StockReasonManual
	}
	v.setStock(stock, reason)
	return nil
}

// Decrement removes qty units from a simple variant, clamping at zero.
// A shortfall records a StockReconciliationRequired event tagged with ref.
func (v *Variant) Decrement(qty int, ref string) (DecrementOutcome, error) {
	if v.IsBundle() {
		return DecrementOutcome{}, ErrDerivedStock
	}
	if qty <= 0 {
		return DecrementOutcome{}, shared.InvalidInput("Decrement quantity must be positive")
	}

	out := DecrementOutcome{Requested: qty, Before: v.Stock}
	after := v.Stock - qty
	if after < 0 {
		out.Shortfall = -after
		after = 0
	}
	out.After = after

	if after != v.Stock {
		v.setStock(after, StockReasonOrder)
	}
	if out.Clamped() {
		v.AddDomainEvent(NewStockReconciliationRequiredEvent(v, out, ref))
	}
	return out, nil
}

// ApplyDerivedStock stores a recomputed bundle stock. It returns false and
// records nothing when the value is unchanged.
func (v *Variant) ApplyDerivedStock(stock int) (bool, error) {
	if !v.IsBundle() {
		return false, shared.InvalidState("Only bundle variants carry derived stock")
	}
	if stock < 0 {
		stock = 0
	}
	if stock == v.Stock {
		return false, nil
	}
	v.setStock(stock, StockReasonPropagated)
	return true, nil
}

// SetPrice updates price and optional list price.
func (v *Variant) SetPrice(price decimal.Decimal, listPrice *decimal.Decimal) error {
	if price.IsNegative() {
		return shared.InvalidInput("Price cannot be negative")
	}
	if listPrice != nil && listPrice.IsNegative() {
		return shared.InvalidInput("List price cannot be negative")
	}

	old := v.Price
	v.Price = price.Round(2)
	if listPrice != nil {
		lp := listPrice.Round(2)
		v.ListPrice = &lp
	} else {
		v.ListPrice = nil
	}
	v.UpdatedAt = time.Now()
	v.IncrementVersion()

	if !old.Equal(v.Price) {
		v.AddDomainEvent(NewPriceChangedEvent(v, old))
	}
	return nil
}

// SetVATRate sets the VAT percentage sent to marketplaces.
func (v *Variant) SetVATRate(rate int) error {
	if rate < 0 || rate > 100 {
		return shared.InvalidInput("VAT rate must be between 0 and 100")
	}
	v.VATRate = rate
	v.UpdatedAt = time.Now()
	v.IncrementVersion()
	return nil
}

// EffectiveListPrice is the recommended retail price, never below Price.
func (v *Variant) EffectiveListPrice() decimal.Decimal {
	if v.ListPrice == nil || v.ListPrice.LessThan(v.Price) {
		return v.Price
	}
	return *v.ListPrice
}

func (v *Variant) setStock(stock int, reason string) {
	old := v.Stock
	v.Stock = stock
	v.UpdatedAt = time.Now()
	v.IncrementVersion()
	v.AddDomainEvent(NewStockChangedEvent(v, old, reason))
}
