package catalog

import (
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// BundleComponent is one line of a bundle recipe: Quantity units of a simple
// variant go into each unit of the bundle.
type BundleComponent struct {
	shared.BaseEntity
	BundleVariantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bundle_component,priority:1"`
	ComponentVariantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bundle_component,priority:2;index"`
	Quantity           int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BundleComponent) TableName() string {
	return "bundle_components"
}

// NewBundleComponent validates and creates a recipe line.
func NewBundleComponent(bundle, component *Variant, quantity int) (*BundleComponent, error) {
	if bundle == nil || component == nil {
		return nil, shared.InvalidInput("Bundle and component are required")
	}
	if !bundle.IsBundle() {
		return nil, shared.InvalidInput("Components can only be attached to bundle variants")
	}
	if bundle.ID == component.ID {
		return nil, shared.InvalidInput("A bundle cannot contain itself")
	}
	if component.IsBundle() {
		return nil, ErrNestedBundle
	}
	if quantity < 1 {
		return nil, shared.InvalidInput("Component quantity must be at least 1")
	}
	return &BundleComponent{
		BaseEntity:         shared.NewBaseEntity(),
		BundleVariantID:    bundle.ID,
		ComponentVariantID: component.ID,
		Quantity:           quantity,
	}, nil
}

// ComponentSpec is a requested recipe line before validation.
type ComponentSpec struct {
	ComponentVariantID uuid.UUID
	Quantity           int
}

// BuildRecipe validates a full recipe for bundle. variants must contain every
// referenced component.
func BuildRecipe(bundle *Variant, specs []ComponentSpec, variants map[uuid.UUID]*Variant) ([]*BundleComponent, error) {
	if !bundle.IsBundle() {
		return nil, shared.InvalidInput("Variant is not a bundle: " + bundle.SKU)
	}
	seen := make(map[uuid.UUID]struct{}, len(specs))
	recipe := make([]*BundleComponent, 0, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec.ComponentVariantID]; dup {
			return nil, ErrDuplicateComponent
		}
		seen[spec.ComponentVariantID] = struct{}{}

		component, ok := variants[spec.ComponentVariantID]
		if !ok {
			return nil, shared.NewDomainError(shared.ErrNotFound.Code, "Component variant not found: "+spec.ComponentVariantID.String())
		}
		line, err := NewBundleComponent(bundle, component, spec.Quantity)
		if err != nil {
			return nil, err
		}
		recipe = append(recipe, line)
	}
	return recipe, nil
}

// ComponentStocks pairs each recipe line with its component's current stock,
// ready for Feasibility. A missing component counts as out of stock.
func ComponentStocks(recipe []BundleComponent, variants map[uuid.UUID]*Variant) []ComponentStock {
	out := make([]ComponentStock, 0, len(recipe))
	for _, line := range recipe {
		v, ok := variants[line.ComponentVariantID]
		if !ok {
			out = append(out, ComponentStock{Quantity: line.Quantity, Stock: 0})
			continue
		}
		out = append(out, ComponentStock{Quantity: line.Quantity, Stock: v.Stock})
	}
	return out
}
