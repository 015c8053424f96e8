package bundling

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrEnrichmentUnavailable is returned by enrichers that are not configured
// or cannot be reached.
var ErrEnrichmentUnavailable = errors.New("bundling: enrichment unavailable")

// EnrichmentRequest is the view of a candidate sent to an Enricher.
type EnrichmentRequest struct {
	SKU         string          `json:"sku"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	BasePrice   decimal.Decimal `json:"base_price"`
	MaxStock    int             `json:"max_stock"`
	DemandScore int             `json:"demand_score"`
	Items       []CandidateItem `json:"items"`
}

// EnrichmentResult is one candidate an Enricher chose, with its copy.
type EnrichmentResult struct {
	SKU string `json:"sku"`
	Enrichment
}

// Enricher selects up to maxSelected of the requests and writes copy for them.
type Enricher interface {
	Enrich(ctx context.Context, requests []EnrichmentRequest, maxSelected int) ([]EnrichmentResult, error)
}

// SelectionOptions bounds the enrichment round trip.
type SelectionOptions struct {
	MaxCandidates int
	MaxSelected   int
}

// DefaultSelectionOptions returns the default selection options
func DefaultSelectionOptions() SelectionOptions {
	return SelectionOptions{MaxCandidates: 10, MaxSelected: 5}
}

// Selection is the outcome of SelectWithEnrichment.
type Selection struct {
	Candidates []Candidate
	Enriched   bool
	// FallbackReason is set when enrichment was attempted and failed.
	FallbackReason error
}

// SelectWithEnrichment sends the top MaxCandidates of ranked to the enricher
// and keeps the ones it picked, ordered by enrichment score. Results naming a
// SKU that was not sent are dropped. When the enricher is nil, fails, or
// picks nothing usable, the numeric top MaxSelected is returned instead.
func SelectWithEnrichment(ctx context.Context, ranked []Candidate, orders []OrderSnapshot, enricher Enricher, opts SelectionOptions) Selection {
	fallback := Selection{Candidates: topK(ranked, opts.MaxSelected)}
	if enricher == nil || len(ranked) == 0 {
		return fallback
	}

	sent := topK(ranked, opts.MaxCandidates)
	counts := DemandCounts(orders)
	requests := make([]EnrichmentRequest, len(sent))
	for i, c := range sent {
		requests[i] = EnrichmentRequest{
			SKU:         c.SKU,
			Brand:       c.Brand,
			Category:    c.Category,
			FinalPrice:  c.FinalPrice,
			BasePrice:   c.BasePrice,
			MaxStock:    c.MaxProducibleUnits,
			DemandScore: DemandScore(c, counts),
			Items:       c.Items,
		}
	}

	results, err := enricher.Enrich(ctx, requests, opts.MaxSelected)
	if err != nil {
		fallback.FallbackReason = err
		return fallback
	}

	bySKU := make(map[string]Enrichment, len(results))
	for _, r := range results {
		if _, dup := bySKU[r.SKU]; !dup {
			bySKU[r.SKU] = r.Enrichment
		}
	}

	var selected []Candidate
	for _, c := range sent {
		e, ok := bySKU[c.SKU]
		if !ok {
			continue
		}
		if e.Title == "" {
			e.Title = c.Title
		}
		enrichment := e
		c.Enrichment = &enrichment
		selected = append(selected, c)
	}
	if len(selected) == 0 {
		return fallback
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Enrichment.Score > selected[j].Enrichment.Score
	})
	return Selection{Candidates: topK(selected, opts.MaxSelected), Enriched: true}
}

func topK(candidates []Candidate, k int) []Candidate {
	if k <= 0 || len(candidates) <= k {
		out := make([]Candidate, len(candidates))
		copy(out, candidates)
		return out
	}
	out := make([]Candidate, k)
	copy(out, candidates[:k])
	return out
}
