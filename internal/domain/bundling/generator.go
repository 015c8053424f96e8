package bundling

// pairTemplate is a quantity ratio tried for every co-ordered pair.
type pairTemplate struct {
	a, b  int
	label string
}

var pairTemplates = []pairTemplate{
	{1, 1, "1+1"},
	{2, 1, "2+1"},
	{3, 2, "3+2"},
}

// Generator turns a catalog snapshot and order history into priced candidates.
type Generator struct {
	pricing PricingConfig
	config  BundleConfig
}

// NewGenerator validates both configurations.
func NewGenerator(pricing PricingConfig, config BundleConfig) (*Generator, error) {
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{pricing: pricing, config: config}, nil
}

// Generate prefers order-driven candidates and falls back to per-brand
// combinations when there are no orders or they produce nothing.
func (g *Generator) Generate(products []ProductSnapshot, orders []OrderSnapshot) []Candidate {
	if len(orders) > 0 {
		if candidates := g.FromOrders(products, orders); len(candidates) > 0 {
			return candidates
		}
	}
	return g.FromBrands(products)
}

// orderBasket is one order's SKU quantities in first-seen order.
type orderBasket struct {
	skus []string
	qty  map[string]int
}

func baskets(orders []OrderSnapshot) []orderBasket {
	index := make(map[string]int)
	var out []orderBasket
	for _, o := range orders {
		if o.Quantity <= 0 || o.SKU == "" {
			continue
		}
		i, ok := index[o.OrderID]
		if !ok {
			i = len(out)
			index[o.OrderID] = i
			out = append(out, orderBasket{qty: make(map[string]int)})
		}
		b := &out[i]
		if _, seen := b.qty[o.SKU]; !seen {
			b.skus = append(b.skus, o.SKU)
		}
		b.qty[o.SKU] += o.Quantity
	}
	return out
}

type pairMatch struct {
	skuA, skuB string
	tmpl       pairTemplate
}

// FromOrders builds two-product candidates from pairs bought together.
func (g *Generator) FromOrders(products []ProductSnapshot, orders []OrderSnapshot) []Candidate {
	all := NewCatalog(products)
	eligible := make(Catalog)
	for _, p := range products {
		if p.Eligible() {
			eligible[p.SKU] = p
		}
	}

	var matches []pairMatch
	seenMatch := make(map[pairMatch]struct{})
	record := func(m pairMatch) {
		if _, ok := seenMatch[m]; ok {
			return
		}
		seenMatch[m] = struct{}{}
		matches = append(matches, m)
	}

	for _, b := range baskets(orders) {
		for i := 0; i < len(b.skus); i++ {
			for j := i + 1; j < len(b.skus); j++ {
				s1, s2 := b.skus[i], b.skus[j]
				q1, q2 := b.qty[s1], b.qty[s2]
				for _, t := range pairTemplates {
					if q1 >= t.a && q2 >= t.b {
						record(pairMatch{s1, s2, t})
					}
					if q2 >= t.a && q1 >= t.b {
						record(pairMatch{s2, s1, t})
					}
				}
			}
		}
	}

	var out []Candidate
	seen := make(map[string]struct{})
	for _, m := range matches {
		pa, okA := eligible[m.skuA]
		pb, okB := eligible[m.skuB]
		if !okA || !okB {
			continue
		}
		if pa.Brand != pb.Brand && pa.Category != pb.Category {
			continue
		}
		items := []CandidateItem{itemFor(pa, m.tmpl.a), itemFor(pb, m.tmpl.b)}
		key := recipeKey(items)
		if _, dup := seen[key]; dup {
			continue
		}
		brand := pa.Brand
		if pa.Brand != pb.Brand {
			brand = MixedBrand
		}
		c, ok := g.build(brand, items, all)
		if !ok {
			continue
		}
		c.Title += " (" + m.tmpl.label + ")"
		c.Pattern = m.tmpl.label
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FromBrands builds single-product multi-packs and mixed packs per brand.
func (g *Generator) FromBrands(products []ProductSnapshot) []Candidate {
	all := NewCatalog(products)

	var brands []string
	byBrand := make(map[string][]ProductSnapshot)
	for _, p := range products {
		if !p.Eligible() {
			continue
		}
		if _, ok := byBrand[p.Brand]; !ok {
			brands = append(brands, p.Brand)
		}
		byBrand[p.Brand] = append(byBrand[p.Brand], p)
	}

	var out []Candidate
	for _, brand := range brands {
		out = append(out, g.brandCandidates(brand, byBrand[brand], all)...)
	}
	return out
}

func (g *Generator) brandCandidates(brand string, products []ProductSnapshot, all Catalog) []Candidate {
	limit := g.config.MaxBundlesForBrand(len(products))
	seen := make(map[string]struct{})
	var out []Candidate

	add := func(items []CandidateItem, pattern string) {
		key := recipeKey(items)
		if _, dup := seen[key]; dup {
			return
		}
		c, ok := g.build(brand, items, all)
		if !ok {
			return
		}
		c.Pattern = pattern
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, p := range products {
		for _, size := range g.config.IndividualSizes {
			if len(out) >= limit {
				return out
			}
			if !p.CanSupply(size) {
				continue
			}
			add([]CandidateItem{itemFor(p, size)}, PatternIndividual)
		}
	}

	for _, size := range g.config.MixedSizes {
		multisets(len(products), size, func(idx []int) bool {
			if len(out) >= limit {
				return false
			}
			items := groupItems(products, idx)
			if len(items) <= 1 {
				return true
			}
			for _, item := range items {
				if !all[item.SKU].CanSupply(item.Quantity) {
					return true
				}
			}
			add(items, PatternMixed)
			return true
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// groupItems collapses a multiset of product indexes into items, keeping the
// order in which SKUs first appear.
func groupItems(products []ProductSnapshot, idx []int) []CandidateItem {
	var items []CandidateItem
	pos := make(map[string]int)
	for _, i := range idx {
		p := products[i]
		if at, ok := pos[p.SKU]; ok {
			items[at].Quantity++
			continue
		}
		pos[p.SKU] = len(items)
		items = append(items, itemFor(p, 1))
	}
	return items
}

// multisets calls fn with every non-decreasing index sequence of length k
// over [0, n), in lexicographic order, until fn returns false.
func multisets(n, k int, fn func([]int) bool) {
	if n <= 0 || k <= 0 {
		return
	}
	idx := make([]int, k)
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-1 {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[i]
		}
	}
}

// build prices a composition and applies the rejection rules.
func (g *Generator) build(brand string, items []CandidateItem, all Catalog) (Candidate, bool) {
	base := items[0].UnitPrice.Mul(decimalInt(items[0].Quantity))
	for _, item := range items[1:] {
		base = base.Add(item.UnitPrice.Mul(decimalInt(item.Quantity)))
	}
	final := g.pricing.FinalPrice(base)
	if final.LessThan(g.pricing.MinPrice) {
		return Candidate{}, false
	}

	totalUnits := 0
	for _, item := range items {
		totalUnits += item.Quantity * item.UnitsPerPack
	}
	if totalUnits > g.config.MaxTotalUnits {
		return Candidate{}, false
	}

	maxUnits := MaxProducibleUnits(items, all)
	if maxUnits <= 0 {
		return Candidate{}, false
	}

	return Candidate{
		SKU:                bundleSKU(items),
		Title:              bundleTitle(brand, items),
		Description:        bundleDescription(brand, items),
		Brand:              brand,
		Category:           bundleCategory(items),
		Items:              items,
		BasePrice:          base.Round(2),
		FinalPrice:         final,
		VATRate:            all[items[0].SKU].VATRate,
		TotalUnits:         totalUnits,
		MaxProducibleUnits: maxUnits,
	}, true
}
