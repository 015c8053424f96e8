package catalog

import (
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
)

// DefaultCategory is assigned when a product arrives without one.
const DefaultCategory = "Uncategorized"

// Product is the merchant-facing item that owns one or more variants.
// Brand, category and units-per-pack feed bundle generation.
type Product struct {
	shared.BaseAggregateRoot
	SKU           string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name          string `gorm:"type:varchar(255);not null"`
	Brand         string `gorm:"type:varchar(100);not null;default:'';index"`
	Category      string `gorm:"type:varchar(100);not null;default:'Uncategorized'"`
	BundleEnabled bool   `gorm:"not null"`
	UnitsPerPack  int    `gorm:"not null;default:1"`
	Description   string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product. The SKU is normalized to upper case and
// cannot change afterwards.
func NewProduct(sku, name string) (*Product, error) {
	sku = NormalizeSKU(sku)
	if err := validateSKU(sku); err != nil {
		return nil, err
	}
	if err := validateProductName(name); err != nil {
		return nil, err
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Name:              strings.TrimSpace(name),
		Category:          DefaultCategory,
		BundleEnabled:     true,
		UnitsPerPack:      1,
	}, nil
}

// Update changes the display name and description.
func (p *Product) Update(name, description string) error {
	if err := validateProductName(name); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(name)
	p.Description = description
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// Classify sets brand and category. An empty category falls back to DefaultCategory.
func (p *Product) Classify(brand, category string) {
	p.Brand = strings.TrimSpace(brand)
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}
	p.Category = category
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

// SetUnitsPerPack sets how many sellable units one pack of this product contains.
func (p *Product) SetUnitsPerPack(units int) error {
	if units < 1 {
		return shared.InvalidInput("Units per pack must be at least 1")
	}
	p.UnitsPerPack = units
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// SetBundleEnabled toggles whether the generator may use this product.
func (p *Product) SetBundleEnabled(enabled bool) {
	if p.BundleEnabled == enabled {
		return
	}
	p.BundleEnabled = enabled
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

// NormalizeSKU trims and upper-cases a SKU so lookups are case-insensitive.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func validateSKU(sku string) error {
	if sku == "" {
		return shared.InvalidInput("SKU cannot be empty")
	}
	if len(sku) > 100 {
		return shared.InvalidInput("SKU cannot exceed 100 characters")
	}
	for _, r := range sku {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.') {
			return shared.InvalidInput("SKU can only contain letters, numbers, dots, underscores, and hyphens")
		}
	}
	return nil
}

func validateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.InvalidInput("Product name cannot be empty")
	}
	if len(name) > 255 {
		return shared.InvalidInput("Product name cannot exceed 255 characters")
	}
	return nil
}
