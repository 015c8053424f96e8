package bundling

import (
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PricingConfig grosses a cost basis up to a marketplace selling price.
type PricingConfig struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FixedCost      decimal.Decimal `json:"fixed_cost"`
	MinPrice       decimal.Decimal `json:"min_price"`
}

// DefaultPricingConfig returns the default pricing configuration
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		CommissionRate: decimal.RequireFromString("0.10"),
		FixedCost:      decimal.NewFromInt(12),
		MinPrice:       decimal.NewFromInt(40),
	}
}

// Validate checks the commission is in [0, 1) and costs are non-negative.
func (c PricingConfig) Validate() error {
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return shared.InvalidInput("Commission rate must be in [0, 1)")
	}
	if c.FixedCost.IsNegative() {
		return shared.InvalidInput("Fixed cost cannot be negative")
	}
	if c.MinPrice.IsNegative() {
		return shared.InvalidInput("Minimum price cannot be negative")
	}
	return nil
}

// BundleConfig bounds what the fallback generator produces.
type BundleConfig struct {
	IndividualSizes       []int `json:"individual_sizes"`
	MixedSizes            []int `json:"mixed_sizes"`
	MaxMultiplierPerBrand int   `json:"max_multiplier_per_brand"`
	MaxTotalUnits         int   `json:"max_total_units"`
}

// DefaultBundleConfig returns the default bundle configuration
func DefaultBundleConfig() BundleConfig {
	return BundleConfig{
		IndividualSizes:       []int{2, 3, 4, 6},
		MixedSizes:            []int{2, 3, 4, 6},
		MaxMultiplierPerBrand: 11,
		MaxTotalUnits:         10,
	}
}

// Validate checks sizes and bounds are positive.
func (c BundleConfig) Validate() error {
	for _, s := range c.IndividualSizes {
		if s < 1 {
			return shared.InvalidInput("Individual bundle sizes must be positive")
		}
	}
	for _, s := range c.MixedSizes {
		if s < 2 {
			return shared.InvalidInput("Mixed bundle sizes must be at least 2")
		}
	}
	if c.MaxMultiplierPerBrand < 1 {
		return shared.InvalidInput("Max multiplier per brand must be positive")
	}
	if c.MaxTotalUnits < 1 {
		return shared.InvalidInput("Max total units must be positive")
	}
	return nil
}

// MaxBundlesForBrand caps fallback candidates for a brand with productCount products.
func (c BundleConfig) MaxBundlesForBrand(productCount int) int {
	return productCount * c.MaxMultiplierPerBrand
}
