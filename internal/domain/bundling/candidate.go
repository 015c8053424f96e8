package bundling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Generation patterns recorded on candidates.
const (
	PatternIndividual = "individual"
	PatternMixed      = "mixed"
	MixedBrand        = "Mixed"
)

// CandidateItem is one component of a proposed bundle.
type CandidateItem struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitsPerPack int             `json:"units_per_pack"`
}

func itemFor(p ProductSnapshot, qty int) CandidateItem {
	return CandidateItem{
		SKU:          p.SKU,
		Name:         p.Name,
		Brand:        p.Brand,
		Category:     p.Category,
		Quantity:     qty,
		UnitPrice:    p.Price,
		UnitsPerPack: p.unitsPerPack(),
	}
}

// Enrichment is marketing metadata attached by an Enricher.
type Enrichment struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Benefits    []string `json:"benefits,omitempty"`
	Score       float64  `json:"score"`
	Reason      string   `json:"reason,omitempty"`
}

// Candidate is a proposed bundle. It is not catalog state.
type Candidate struct {
	SKU                string          `json:"sku"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Brand              string          `json:"brand"`
	Category           string          `json:"category"`
	Items              []CandidateItem `json:"items"`
	BasePrice          decimal.Decimal `json:"base_price"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	VATRate            int             `json:"vat_rate"`
	TotalUnits         int             `json:"total_units"`
	MaxProducibleUnits int             `json:"max_producible_units"`
	Pattern            string          `json:"pattern"`
	Score              float64         `json:"score"`
	Enrichment         *Enrichment     `json:"enrichment,omitempty"`
}

// ItemSummary renders "2x A, 1x B".
func (c Candidate) ItemSummary() string {
	parts := make([]string, len(c.Items))
	for i, item := range c.Items {
		parts[i] = fmt.Sprintf("%dx %s", item.Quantity, item.Name)
	}
	return strings.Join(parts, ", ")
}

// recipeKey identifies a composition regardless of item order.
func recipeKey(items []CandidateItem) string {
	pairs := make([]string, len(items))
	for i, item := range items {
		pairs[i] = fmt.Sprintf("%s\x00%d", item.SKU, item.Quantity)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\x01")
}

// bundleSKU builds PACK-<sku>-x<q>-... with items sorted by SKU.
func bundleSKU(items []CandidateItem) string {
	sorted := make([]CandidateItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })

	parts := make([]string, 0, len(sorted)+1)
	parts = append(parts, "PACK")
	for _, item := range sorted {
		parts = append(parts, fmt.Sprintf("%s-x%d", item.SKU, item.Quantity))
	}
	return strings.Join(parts, "-")
}

func totalQuantity(items []CandidateItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func distinctSKUs(items []CandidateItem) int {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[item.SKU] = struct{}{}
	}
	return len(seen)
}

func bundleTitle(brand string, items []CandidateItem) string {
	total := totalQuantity(items)
	if distinctSKUs(items) == 1 {
		return fmt.Sprintf("Set %d x %s", total, items[0].Name)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%dx %s", item.Quantity, item.Name)
	}
	return fmt.Sprintf("Set %d %s Mix: %s", total, brand, strings.Join(parts, ", "))
}

func bundleDescription(brand string, items []CandidateItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Promotional bundle for %s containing:", brand)
	for _, item := range items {
		fmt.Fprintf(&b, "\n- %d x %s", item.Quantity, item.Name)
	}
	return b.String()
}

func bundleCategory(items []CandidateItem) string {
	if distinctSKUs(items) == 1 {
		return items[0].Category
	}
	return items[0].Category + " Mix"
}
