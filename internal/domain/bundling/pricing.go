package bundling

import (
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FinalPrice returns (base + fixed) / (1 - commission), rounded up to the cent
// so the merchant never nets below cost.
func (c PricingConfig) FinalPrice(base decimal.Decimal) decimal.Decimal {
	gross := base.Add(c.FixedCost).Div(decimal.NewFromInt(1).Sub(c.CommissionRate))
	return CeilCents(gross)
}

// CeilCents rounds up to two decimal places.
func CeilCents(d decimal.Decimal) decimal.Decimal {
	return d.Mul(hundred).Ceil().Div(hundred)
}

// MaxProducibleUnits is the feasibility of a proposed recipe against the
// snapshot. A SKU missing from the snapshot or without tracked stock
// makes the recipe infeasible.
func MaxProducibleUnits(items []CandidateItem, products Catalog) int {
	if len(items) == 0 {
		return 0
	}
	stocks := make([]catalog.ComponentStock, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return 0
		}
		p, ok := products[item.SKU]
		if !ok || p.Stock == nil {
			return 0
		}
		stocks = append(stocks, catalog.ComponentStock{Quantity: item.Quantity, Stock: *p.Stock})
	}
	return catalog.Feasibility(stocks).Units()
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
