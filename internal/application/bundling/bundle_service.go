package bundling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultOrderWindow is how much order history feeds a catalog generation.
const DefaultOrderWindow = 90 * 24 * time.Hour

// Config holds the defaults a BundleService generates with
type Config struct {
	Pricing     bundling.PricingConfig
	Bundle      bundling.BundleConfig
	Selection   bundling.SelectionOptions
	OrderWindow time.Duration
}

// DefaultConfig returns the default generation settings
func DefaultConfig() Config {
	return Config{
		Pricing:     bundling.DefaultPricingConfig(),
		Bundle:      bundling.DefaultBundleConfig(),
		Selection:   bundling.DefaultSelectionOptions(),
		OrderWindow: DefaultOrderWindow,
	}
}

// BundleService proposes bundles from a catalog snapshot and promotes chosen
// proposals into real bundle variants.
type BundleService struct {
	scope      transaction.Scope
	products   catalog.ProductRepository
	variants   catalog.VariantRepository
	orderLines order.OrderLineRepository
	enricher   bundling.Enricher
	config     Config
	now        func() time.Time
	logger     *zap.Logger
}

// NewBundleService creates a new BundleService. The repositories may be nil
// when every request carries its own snapshot.
func NewBundleService(
	scope transaction.Scope,
	products catalog.ProductRepository,
	variants catalog.VariantRepository,
	orderLines order.OrderLineRepository,
	enricher bundling.Enricher,
	config Config,
	logger *zap.Logger,
) *BundleService {
	return &BundleService{
		scope:      scope,
		products:   products,
		variants:   variants,
		orderLines: orderLines,
		enricher:   enricher,
		config:     config,
		now:        time.Now,
		logger:     logger,
	}
}

// GenerateBundles runs generation, ranking and the optional enrichment pass.
// Candidates that cannot be produced are dropped, not reported as errors.
func (s *BundleService) GenerateBundles(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	pricing := s.config.Pricing
	if req.Pricing != nil {
		pricing = bundling.PricingConfig(*req.Pricing)
	}
	bundleConfig := s.config.Bundle
	if req.Bundle != nil {
		bundleConfig = *req.Bundle
	}
	generator, err := bundling.NewGenerator(pricing, bundleConfig)
	if err != nil {
		return nil, err
	}

	products, orders := req.Products, req.Orders
	if len(products) == 0 {
		products, orders, err = s.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
	}

	generated := generator.Generate(products, orders)
	ranked := bundling.Rank(generated, orders, req.TopN)

	resp := &GenerateResponse{Generated: len(generated), Feasible: len(ranked)}
	if !req.Enrich {
		resp.Candidates = ranked
	} else {
		selection := bundling.SelectWithEnrichment(ctx, ranked, orders, s.enricher, s.config.Selection)
		resp.Candidates = selection.Candidates
		resp.Enriched = selection.Enriched
		if selection.FallbackReason != nil {
			resp.FallbackReason = selection.FallbackReason.Error()
			s.logger.Warn("bundle enrichment unavailable, using numeric ranking",
				zap.Error(selection.FallbackReason),
			)
		}
	}
	if resp.Candidates == nil {
		resp.Candidates = []bundling.Candidate{}
	}

	s.logger.Info("bundles generated",
		zap.Int("products", len(products)),
		zap.Int("orders", len(orders)),
		zap.Int("generated", resp.Generated),
		zap.Int("feasible", resp.Feasible),
		zap.Int("returned", len(resp.Candidates)),
		zap.Bool("enriched", resp.Enriched),
	)
	return resp, nil
}

// Snapshot reads simple variants as generator products and recent order
// lines as order history.
func (s *BundleService) Snapshot(ctx context.Context) ([]bundling.ProductSnapshot, []bundling.OrderSnapshot, error) {
	if s.variants == nil || s.products == nil {
		return nil, nil, shared.InvalidInput("Products are required")
	}
	variants, err := s.variants.FindByKind(ctx, catalog.VariantKindSimple, shared.Filter{})
	if err != nil {
		return nil, nil, fmt.Errorf("load variants: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]catalog.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	products := make([]bundling.ProductSnapshot, 0, len(variants))
	for _, v := range variants {
		p, ok := byID[v.ProductID]
		if !ok {
			continue
		}
		stock := v.Stock
		products = append(products, bundling.ProductSnapshot{
			SKU:           v.SKU,
			Name:          p.Name,
			Brand:         p.Brand,
			Category:      p.Category,
			Price:         v.Price,
			VATRate:       v.VATRate,
			Stock:         &stock,
			BundleEnabled: p.BundleEnabled,
			UnitsPerPack:  p.UnitsPerPack,
		})
	}

	var orders []bundling.OrderSnapshot
	if s.orderLines != nil {
		lines, err := s.orderLines.FindSince(ctx, s.now().Add(-s.config.OrderWindow))
		if err != nil {
			return nil, nil, fmt.Errorf("load order lines: %w", err)
		}
		for _, line := range lines {
			if !line.IsApplied() {
				continue
			}
			orders = append(orders, bundling.OrderSnapshot{OrderID: line.OrderID, SKU: line.SKU, Quantity: line.Quantity})
		}
	}
	return products, orders, nil
}

// Promote creates a product, a bundle variant and its recipe from a candidate.
// The candidate is re-checked against current stock first; a bundle nobody
// can assemble is refused.
func (s *BundleService) Promote(ctx context.Context, req PromoteRequest) (*PromoteResponse, error) {
	c := req.Candidate
	if len(c.Items) == 0 {
		return nil, shared.InvalidInput("Candidate has no items")
	}

	var resp PromoteResponse
	err := s.scope.Execute(ctx, func(repos transaction.Repositories) error {
		components := make(map[uuid.UUID]*catalog.Variant, len(c.Items))
		specs := make([]catalog.ComponentSpec, 0, len(c.Items))
		stocks := make([]catalog.ComponentStock, 0, len(c.Items))
		for _, item := range c.Items {
			v, err := repos.Variants().FindBySKU(ctx, item.SKU)
			if errors.Is(err, shared.ErrNotFound) {
				return shared.InvalidInput("Unknown component SKU: " + item.SKU)
			}
			if err != nil {
				return err
			}
			components[v.ID] = v
			specs = append(specs, catalog.ComponentSpec{ComponentVariantID: v.ID, Quantity: item.Quantity})
			stocks = append(stocks, catalog.ComponentStock{Quantity: item.Quantity, Stock: v.Stock})
		}
		capacity := catalog.Feasibility(stocks).Units()
		if capacity <= 0 {
			return shared.InvalidState("Bundle cannot be assembled from current stock")
		}

		product, err := catalog.NewProduct(c.SKU, c.Title)
		if err != nil {
			return err
		}
		if err := product.Update(c.Title, c.Description); err != nil {
			return err
		}
		product.Classify(c.Brand, c.Category)
		product.SetBundleEnabled(false)
		if err := repos.Products().Save(ctx, product); err != nil {
			return err
		}

		bundle, err := catalog.NewBundleVariant(product.ID, c.SKU, c.FinalPrice)
		if err != nil {
			return err
		}
		if c.VATRate > 0 {
			if err := bundle.SetVATRate(c.VATRate); err != nil {
				return err
			}
		}
		bundle.ClearDomainEvents()
		if err := repos.Variants().Create(ctx, bundle); err != nil {
			return err
		}

		recipe, err := catalog.BuildRecipe(bundle, specs, components)
		if err != nil {
			return err
		}
		if err := repos.Components().ReplaceRecipe(ctx, bundle.ID, recipe); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(recipe))
		for i, line := range recipe {
			ids[i] = line.ComponentVariantID
		}
		resp = PromoteResponse{ProductID: product.ID, VariantID: bundle.ID, SKU: bundle.SKU, Capacity: capacity}
		return repos.Events().Record(ctx, catalog.NewBundleComponentChangedEvent(bundle.ID, ids))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle candidate promoted",
		zap.String("sku", resp.SKU),
		zap.String("variant_id", resp.VariantID.String()),
		zap.Int("capacity", resp.Capacity),
	)
	return &resp, nil
}
