package bundling

import (
	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingRequest overrides the configured pricing for one generation
type PricingRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FixedCost      decimal.Decimal `json:"fixed_cost"`
	MinPrice       decimal.Decimal `json:"min_price"`
}

// GenerateRequest asks for ranked bundle proposals. Without products the
// current catalog and recent order lines are used.
type GenerateRequest struct {
	Products []bundling.ProductSnapshot `json:"products"`
	Orders   []bundling.OrderSnapshot   `json:"orders"`
	Pricing  *PricingRequest            `json:"pricing"`
	Bundle   *bundling.BundleConfig     `json:"bundle"`
	TopN     int                        `json:"top_n" binding:"min=0,max=500"`
	Enrich   bool                       `json:"enrich"`
}

// GenerateResponse carries the ranked candidates
type GenerateResponse struct {
	Candidates     []bundling.Candidate `json:"candidates"`
	Generated      int                  `json:"generated"`
	Feasible       int                  `json:"feasible"`
	Enriched       bool                 `json:"enriched"`
	FallbackReason string               `json:"fallback_reason,omitempty"`
}

// PromoteRequest turns a candidate into a catalog bundle
type PromoteRequest struct {
	Candidate bundling.Candidate `json:"candidate" binding:"required"`
}

// PromoteResponse identifies the created bundle
type PromoteResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Capacity  int       `json:"capacity"`
}
