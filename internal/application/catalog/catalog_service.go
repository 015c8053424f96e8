package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService handles catalog writes: products, variants, manual stock
// adjustments and bundle recipes. Every write records its events in the
// outbox so propagation and listing sync pick them up after commit.
type CatalogService struct {
	scope    transaction.Scope
	products catalog.ProductRepository
	variants catalog.VariantRepository
	logger   *zap.Logger
	attempts int
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	scope transaction.Scope,
	products catalog.ProductRepository,
	variants catalog.VariantRepository,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		scope:    scope,
		products: products,
		variants: variants,
		logger:   logger,
		attempts: transaction.DefaultConflictAttempts,
	}
}

// CreateProduct creates a new product
func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResponse, error) {
	product, err := catalog.NewProduct(req.SKU, req.Name)
	if err != nil {
		return nil, err
	}
	if req.Description != "" {
		if err := product.Update(req.Name, req.Description); err != nil {
			return nil, err
		}
	}
	product.Classify(req.Brand, req.Category)
	if req.UnitsPerPack != nil {
		if err := product.SetUnitsPerPack(*req.UnitsPerPack); err != nil {
			return nil, err
		}
	}
	if req.BundleEnabled != nil {
		product.SetBundleEnabled(*req.BundleEnabled)
	}

	if err := s.products.Save(ctx, product); err != nil {
		return nil, err
	}
	resp := ToProductResponse(product)
	return &resp, nil
}

// CreateVariant creates a simple or bundle variant under an existing product
func (s *CatalogService) CreateVariant(ctx context.Context, req CreateVariantRequest) (*VariantResponse, error) {
	if _, err := s.products.FindByID(ctx, req.ProductID); err != nil {
		return nil, err
	}

	var (
		variant *catalog.Variant
		err     error
	)
	switch req.Kind {
	case catalog.VariantKindSimple:
		variant, err = catalog.NewSimpleVariant(req.ProductID, req.SKU, req.Price, req.Stock)
	case catalog.VariantKindBundle:
		variant, err = catalog.NewBundleVariant(req.ProductID, req.SKU, req.Price)
	default:
		err = shared.InvalidInput(fmt.Sprintf("Unknown variant kind %q", req.Kind))
	}
	if err != nil {
		return nil, err
	}

	variant.Barcode = strings.TrimSpace(req.Barcode)
	if req.ListPrice != nil {
		if err := variant.SetPrice(variant.Price, req.ListPrice); err != nil {
			return nil, err
		}
	}
	if req.VATRate != nil {
		if err := variant.SetVATRate(*req.VATRate); err != nil {
			return nil, err
		}
	}
	variant.ClearDomainEvents()

	if err := s.variants.Create(ctx, variant); err != nil {
		return nil, err
	}
	resp := ToVariantResponse(variant)
	return &resp, nil
}

// GetVariant returns a variant by ID
func (s *CatalogService) GetVariant(ctx context.Context, id uuid.UUID) (*VariantResponse, error) {
	variant, err := s.variants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToVariantResponse(variant)
	return &resp, nil
}

// AdjustStock sets a simple variant's stock. Bundles return catalog.ErrDerivedStock.
func (s *CatalogService) AdjustStock(ctx context.Context, variantID uuid.UUID, req AdjustStockRequest) (*VariantResponse, error) {
	var saved *catalog.Variant
	err := transaction.RetryOnConflict(ctx, s.attempts, func() error {
		return s.scope.Execute(ctx, func(repos transaction.Repositories) error {
			v, err := lockOne(ctx, repos, variantID)
			if err != nil {
				return err
			}
			loaded := v.Version
			if err := v.AdjustStock(req.Stock, req.Reason); err != nil {
				return err
			}
			saved = v
			return saveVariant(ctx, repos, v, loaded)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("variant stock adjusted",
		zap.String("variant_id", variantID.String()),
		zap.String("sku", saved.SKU),
		zap.Int("stock", saved.Stock),
	)
	resp := ToVariantResponse(saved)
	return &resp, nil
}

// SetPrice updates a variant's price. A changed price records PriceChanged.
func (s *CatalogService) SetPrice(ctx context.Context, variantID uuid.UUID, req SetPriceRequest) (*VariantResponse, error) {
	var saved *catalog.Variant
	err := transaction.RetryOnConflict(ctx, s.attempts, func() error {
		return s.scope.Execute(ctx, func(repos transaction.Repositories) error {
			v, err := lockOne(ctx, repos, variantID)
			if err != nil {
				return err
			}
			loaded := v.Version
			if err := v.SetPrice(req.Price, req.ListPrice); err != nil {
				return err
			}
			saved = v
			return saveVariant(ctx, repos, v, loaded)
		})
	})
	if err != nil {
		return nil, err
	}
	resp := ToVariantResponse(saved)
	return &resp, nil
}

// ReplaceRecipe swaps a bundle's recipe and records BundleComponentChanged
// naming every component that was added, kept or removed.
func (s *CatalogService) ReplaceRecipe(ctx context.Context, bundleID uuid.UUID, req ReplaceRecipeRequest) (*RecipeResponse, error) {
	var recipe []*catalog.BundleComponent
	err := s.scope.Execute(ctx, func(repos transaction.Repositories) error {
		bundle, err := repos.Variants().FindByID(ctx, bundleID)
		if err != nil {
			return err
		}

		specs := make([]catalog.ComponentSpec, len(req.Components))
		ids := make([]uuid.UUID, len(req.Components))
		for i, c := range req.Components {
			specs[i] = catalog.ComponentSpec{ComponentVariantID: c.VariantID, Quantity: c.Quantity}
			ids[i] = c.VariantID
		}
		found, err := repos.Variants().FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*catalog.Variant, len(found))
		for _, v := range found {
			byID[v.ID] = v
		}

		recipe, err = catalog.BuildRecipe(bundle, specs, byID)
		if err != nil {
			return err
		}

		previous, err := repos.Components().FindByBundle(ctx, bundleID)
		if err != nil {
			return err
		}
		if err := repos.Components().ReplaceRecipe(ctx, bundleID, recipe); err != nil {
			return err
		}

		touched := make([]uuid.UUID, 0, len(previous)+len(recipe))
		seen := make(map[uuid.UUID]bool, cap(touched))
		for _, line := range previous {
			if !seen[line.ComponentVariantID] {
				seen[line.ComponentVariantID] = true
				touched = append(touched, line.ComponentVariantID)
			}
		}
		for _, line := range recipe {
			if !seen[line.ComponentVariantID] {
				seen[line.ComponentVariantID] = true
				touched = append(touched, line.ComponentVariantID)
			}
		}
		return repos.Events().Record(ctx, catalog.NewBundleComponentChangedEvent(bundleID, touched))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle recipe replaced",
		zap.String("bundle_id", bundleID.String()),
		zap.Int("components", len(recipe)),
	)
	resp := ToRecipeResponse(bundleID, recipe)
	return &resp, nil
}

// lockOne loads a single variant under a row lock.
func lockOne(ctx context.Context, repos transaction.Repositories, id uuid.UUID) (*catalog.Variant, error) {
	locked, err := repos.Variants().FindByIDsForUpdate(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, shared.ErrNotFound
	}
	return locked[0], nil
}

// saveVariant writes v if a mutation moved it past loaded, then records its
// events.
func saveVariant(ctx context.Context, repos transaction.Repositories, v *catalog.Variant, loaded int) error {
	if v.Version == loaded {
		return nil
	}
	if err := repos.Variants().SaveWithLock(ctx, v); err != nil {
		return err
	}
	return repos.Events().Record(ctx, v.PopDomainEvents()...)
}
