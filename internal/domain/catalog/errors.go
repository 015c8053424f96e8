package catalog

import "github.com/bundlesync/engine/internal/domain/shared"

var (
	// ErrDerivedStock is returned when something other than the propagator
	// tries to write a bundle's stock.
	ErrDerivedStock = shared.NewDomainError("DERIVED_STOCK", "Bundle stock is derived from its components and cannot be set directly")
	// ErrNestedBundle is returned when a bundle is used as a component.
	ErrNestedBundle = shared.NewDomainError("NESTED_BUNDLE", "Bundle components must be simple variants")
	// ErrDuplicateComponent is returned when a recipe lists the same component twice.
	ErrDuplicateComponent = shared.NewDomainError("DUPLICATE_COMPONENT", "Component appears more than once in the bundle")
)
