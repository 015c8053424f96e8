package catalog

// ComponentStock is one component's contribution to a bundle: how many units
// the recipe needs and how many are on hand.
type ComponentStock struct {
	Quantity int
	Stock    int
}

// Capacity is the number of bundle units a recipe allows. Unbounded means no
// component constrained the result.
type Capacity struct {
	bounded bool
	units   int
}

// Unbounded returns the capacity of a recipe with no constraining component.
func Unbounded() Capacity {
	return Capacity{}
}

// Bounded returns a capacity of exactly units.
func Bounded(units int) Capacity {
	if units < 0 {
		units = 0
	}
	return Capacity{bounded: true, units: units}
}

// IsBounded reports whether some component limited the capacity.
func (c Capacity) IsBounded() bool {
	return c.bounded
}

// Units converts the capacity to a stock figure. Unbounded is 0: a bundle with
// nothing constraining it has nothing to sell either.
func (c Capacity) Units() int {
	if !c.bounded {
		return 0
	}
	return c.units
}

// Feasibility returns min(floor(stock/qty)) over components. Lines with a
// non-positive quantity are ignored. A component with no stock short-circuits
// to Bounded(0).
func Feasibility(components []ComponentStock) Capacity {
	result := Unbounded()
	for _, c := range components {
		if c.Quantity <= 0 {
			continue
		}
		if c.Stock <= 0 {
			return Bounded(0)
		}
		units := c.Stock / c.Quantity
		if !result.bounded || units < result.units {
			result = Bounded(units)
		}
	}
	return result
}
