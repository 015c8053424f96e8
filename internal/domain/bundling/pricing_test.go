package bundling

import (
	"testing"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int {
	return &n
}

func TestPricingConfig_FinalPrice(t *testing.T) {
	cfg := DefaultPricingConfig()

	tests := []struct {
		name string
		base string
		want string
	}{
		{"grosses up and rounds up to the cent", "100", "124.45"},
		{"exact result is unchanged", "33", "50"},
		{"zero base still covers fixed cost", "0", "13.34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.FinalPrice(dec(tt.base))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}

	t.Run("zero commission", func(t *testing.T) {
		c := PricingConfig{CommissionRate: decimal.Zero, FixedCost: dec("1.001")}
		assert.True(t, c.FinalPrice(dec("10")).Equal(dec("11.01")))
	})
}

func TestPricingConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultPricingConfig().Validate())

	bad := DefaultPricingConfig()
	bad.CommissionRate = dec("1")
	assert.ErrorIs(t, bad.Validate(), shared.ErrInvalidInput)

	bad.CommissionRate = dec("-0.1")
	assert.ErrorIs(t, bad.Validate(), shared.ErrInvalidInput)
}

func TestMaxProducibleUnits(t *testing.T) {
	products := NewCatalog([]ProductSnapshot{
		{SKU: "A", Stock: intPtr(10)},
		{SKU: "B", Stock: intPtr(7)},
		{SKU: "U"},
	})

	assert.Equal(t, 5, MaxProducibleUnits([]CandidateItem{{SKU: "A", Quantity: 2}, {SKU: "B", Quantity: 1}}, products))
	assert.Equal(t, 0, MaxProducibleUnits([]CandidateItem{{SKU: "A", Quantity: 2}, {SKU: "MISSING", Quantity: 1}}, products))
	assert.Equal(t, 0, MaxProducibleUnits([]CandidateItem{{SKU: "U", Quantity: 1}}, products))
	assert.Equal(t, 0, MaxProducibleUnits(nil, products))
}
