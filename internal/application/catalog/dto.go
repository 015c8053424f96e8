package catalog

import (
	"time"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProductRequest represents a request to create a new product
type CreateProductRequest struct {
	SKU           string `json:"sku" binding:"required,max=100,sku"`
	Name          string `json:"name" binding:"required,min=1,max=255"`
	Brand         string `json:"brand" binding:"max=100"`
	Category      string `json:"category" binding:"max=100"`
	Description   string `json:"description" binding:"max=5000"`
	UnitsPerPack  *int   `json:"units_per_pack" binding:"omitempty,min=1"`
	BundleEnabled *bool  `json:"bundle_enabled"`
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID            uuid.UUID `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	UnitsPerPack  int       `json:"units_per_pack"`
	BundleEnabled bool      `json:"bundle_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateVariantRequest represents a request to create a variant. Stock is
// ignored for bundles, whose stock is derived from their components.
type CreateVariantRequest struct {
	ProductID uuid.UUID           `json:"product_id" binding:"required"`
	SKU       string              `json:"sku" binding:"required,max=100,sku"`
	Barcode   string              `json:"barcode" binding:"max=64"`
	Kind      catalog.VariantKind `json:"kind" binding:"required,oneof=simple bundle"`
	Price     decimal.Decimal     `json:"price" binding:"price"`
	ListPrice *decimal.Decimal    `json:"list_price" binding:"omitempty,price"`
	VATRate   *int                `json:"vat_rate" binding:"omitempty,min=0,max=100"`
	Stock     int                 `json:"stock" binding:"min=0"`
}

// AdjustStockRequest sets a simple variant's stock to an absolute value
type AdjustStockRequest struct {
	Stock  int    `json:"stock" binding:"min=0"`
	Reason string `json:"reason" binding:"max=100"`
}

// SetPriceRequest updates a variant's price and optional list price
type SetPriceRequest struct {
	Price     decimal.Decimal  `json:"price" binding:"price"`
	ListPrice *decimal.Decimal `json:"list_price" binding:"omitempty,price"`
}

// VariantResponse represents a variant in API responses
type VariantResponse struct {
	ID        uuid.UUID           `json:"id"`
	ProductID uuid.UUID           `json:"product_id"`
	SKU       string              `json:"sku"`
	Barcode   string              `json:"barcode"`
	Kind      catalog.VariantKind `json:"kind"`
	Stock     int                 `json:"stock"`
	Price     decimal.Decimal     `json:"price"`
	ListPrice *decimal.Decimal    `json:"list_price,omitempty"`
	VATRate   int                 `json:"vat_rate"`
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ComponentRequest is one recipe line in a ReplaceRecipeRequest
type ComponentRequest struct {
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// ReplaceRecipeRequest replaces a bundle's whole recipe
type ReplaceRecipeRequest struct {
	Components []ComponentRequest `json:"components" binding:"dive"`
}

// ComponentResponse is one recipe line in API responses
type ComponentResponse struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// RecipeResponse represents a bundle recipe in API responses
type RecipeResponse struct {
	BundleVariantID uuid.UUID           `json:"bundle_variant_id"`
	Components      []ComponentResponse `json:"components"`
}

// RecomputeResponse reports the outcome of a bundle stock recompute
type RecomputeResponse struct {
	BundleVariantID uuid.UUID `json:"bundle_variant_id"`
	Stock           int       `json:"stock"`
	Changed         bool      `json:"changed"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Brand:         p.Brand,
		Category:      p.Category,
		Description:   p.Description,
		UnitsPerPack:  p.UnitsPerPack,
		BundleEnabled: p.BundleEnabled,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// ToVariantResponse converts a domain Variant to VariantResponse
func ToVariantResponse(v *catalog.Variant) VariantResponse {
	return VariantResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		SKU:       v.SKU,
		Barcode:   v.Barcode,
		Kind:      v.Kind,
		Stock:     v.Stock,
		Price:     v.Price,
		ListPrice: v.ListPrice,
		VATRate:   v.VATRate,
		Version:   v.Version,
		UpdatedAt: v.UpdatedAt,
	}
}

// ToRecipeResponse converts recipe lines to RecipeResponse
func ToRecipeResponse(bundleID uuid.UUID, lines []*catalog.BundleComponent) RecipeResponse {
	components := make([]ComponentResponse, len(lines))
	for i, line := range lines {
		components[i] = ComponentResponse{VariantID: line.ComponentVariantID, Quantity: line.Quantity}
	}
	return RecipeResponse{BundleVariantID: bundleID, Components: components}
}
