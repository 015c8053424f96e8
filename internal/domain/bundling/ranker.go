package bundling

import (
	"sort"
)

// stockFactorCap limits how much a deep stock position can boost a score.
const stockFactorCap = 50

// DemandCounts sums ordered quantity per SKU.
func DemandCounts(orders []OrderSnapshot) map[string]int {
	counts := make(map[string]int)
	for _, o := range orders {
		counts[o.SKU] += o.Quantity
	}
	return counts
}

// DemandScore weights each component's historical demand by its quantity in the bundle.
func DemandScore(c Candidate, counts map[string]int) int {
	score := 0
	for _, item := range c.Items {
		score += counts[item.SKU] * item.Quantity
	}
	return score
}

// Score is (2*demand + margin - 0.01*finalPrice) * (1 + min(units, 50)/100).
func Score(c Candidate, demand int) float64 {
	final := c.FinalPrice.InexactFloat64()
	margin := final - c.BasePrice.InexactFloat64()
	if margin < 0 {
		margin = 0
	}
	units := c.MaxProducibleUnits
	if units > stockFactorCap {
		units = stockFactorCap
	}
	return (2*float64(demand) + margin - 0.01*final) * (1 + float64(units)/100)
}

// Rank drops infeasible candidates, scores the rest and sorts them by score,
// keeping input order among ties. topN <= 0 returns all.
func Rank(candidates []Candidate, orders []OrderSnapshot, topN int) []Candidate {
	counts := DemandCounts(orders)
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.MaxProducibleUnits <= 0 {
			continue
		}
		c.Score = Score(c, DemandScore(c, counts))
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
