package bundling

import (
	"github.com/shopspring/decimal"
)

// ProductSnapshot is a product as seen by the generator.
type ProductSnapshot struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	VATRate       int             `json:"vat_rate"`
	Stock         *int            `json:"stock"`
	BundleEnabled bool            `json:"bundle_enabled"`
	UnitsPerPack  int             `json:"units_per_pack"`
}

// Eligible reports whether the product may appear in a generated bundle.
func (p ProductSnapshot) Eligible() bool {
	if !p.BundleEnabled || !p.Price.IsPositive() {
		return false
	}
	return p.Stock == nil || *p.Stock > 0
}

// CanSupply reports whether qty units could be taken. Untracked stock always can.
func (p ProductSnapshot) CanSupply(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}

func (p ProductSnapshot) unitsPerPack() int {
	if p.UnitsPerPack < 1 {
		return 1
	}
	return p.UnitsPerPack
}

// OrderSnapshot is one historical order line.
type OrderSnapshot struct {
	OrderID  string `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Catalog indexes products by SKU.
type Catalog map[string]ProductSnapshot

// NewCatalog builds a Catalog. Later duplicates of a SKU win.
func NewCatalog(products []ProductSnapshot) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.SKU] = p
	}
	return c
}
