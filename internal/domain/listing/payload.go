package listing

import (
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/integration"
)

// BuildPayload assembles the offer sent to the marketplace. The stock sent
// never exceeds the variant's stock, and the list price never undercuts the
// selling price.
func BuildPayload(l *Listing, v *catalog.Variant, p *catalog.Product) integration.ListingPayload {
	price := v.Price
	if l.PriceOverride != nil {
		price = *l.PriceOverride
	}
	listPrice := v.EffectiveListPrice()
	if listPrice.LessThan(price) {
		listPrice = price
	}

	payload := integration.ListingPayload{
		SKU:                v.SKU,
		Barcode:            v.Barcode,
		Price:              price.Round(2),
		ListPrice:          listPrice.Round(2),
		Stock:              PublishedStock(l, v),
		VATRate:            v.VATRate,
		PlatformCategoryID: l.PlatformCategoryID,
		PlatformBrandID:    l.PlatformBrandID,
		Update:             l.IsUpdate(),
	}
	if p != nil {
		payload.Title = p.Name
		payload.Description = p.Description
		payload.Brand = p.Brand
	}
	return payload
}

// BuildStockUpdate assembles the price-and-inventory push for an active listing.
func BuildStockUpdate(l *Listing, v *catalog.Variant) integration.StockUpdate {
	full := BuildPayload(l, v, nil)
	return integration.StockUpdate{
		SKU:       full.SKU,
		Stock:     full.Stock,
		Price:     full.Price,
		ListPrice: full.ListPrice,
	}
}

// PublishedStock is min(override, variant stock), or the variant stock when
// there is no override.
func PublishedStock(l *Listing, v *catalog.Variant) int {
	stock := v.Stock
	if l.StockOverride != nil && *l.StockOverride < stock {
		stock = *l.StockOverride
	}
	if stock < 0 {
		return 0
	}
	return stock
}
