package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockPropagator keeps bundle stock equal to what the bundle's components
// allow. Only direct components are considered; bundles never nest.
type StockPropagator struct {
	scope      transaction.Scope
	components catalog.BundleComponentRepository
	logger     *zap.Logger
	attempts   int
}

// NewStockPropagator creates a new StockPropagator
func NewStockPropagator(
	scope transaction.Scope,
	components catalog.BundleComponentRepository,
	logger *zap.Logger,
) *StockPropagator {
	return &StockPropagator{
		scope:      scope,
		components: components,
		logger:     logger,
		attempts:   transaction.DefaultConflictAttempts,
	}
}

// Recompute derives a bundle's stock from its recipe and stores it if it
// changed. A changed value records a StockChanged event for the bundle in the
// same transaction. Calling it again with nothing changed writes nothing.
func (p *StockPropagator) Recompute(ctx context.Context, bundleID uuid.UUID) (int, bool, error) {
	var (
		stock   int
		changed bool
	)
	err := transaction.RetryOnConflict(ctx, p.attempts, func() error {
		return p.scope.Execute(ctx, func(repos transaction.Repositories) error {
			var err error
			stock, changed, err = recompute(ctx, repos, bundleID)
			return err
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("recompute bundle %s: %w", bundleID, err)
	}

	if changed {
		p.logger.Info("bundle stock recomputed",
			zap.String("bundle_id", bundleID.String()),
			zap.Int("stock", stock),
		)
	}
	return stock, changed, nil
}

func recompute(ctx context.Context, repos transaction.Repositories, bundleID uuid.UUID) (int, bool, error) {
	bundle, err := repos.Variants().FindByID(ctx, bundleID)
	if err != nil {
		return 0, false, err
	}
	if !bundle.IsBundle() {
		return 0, false, shared.InvalidInput("Variant is not a bundle: " + bundle.SKU)
	}

	recipe, err := repos.Components().FindByBundle(ctx, bundleID)
	if err != nil {
		return 0, false, err
	}
	ids := make([]uuid.UUID, len(recipe))
	for i, line := range recipe {
		ids[i] = line.ComponentVariantID
	}
	components, err := repos.Variants().FindByIDs(ctx, ids)
	if err != nil {
		return 0, false, err
	}
	byID := make(map[uuid.UUID]*catalog.Variant, len(components))
	for _, v := range components {
		byID[v.ID] = v
	}

	stock := catalog.Feasibility(catalog.ComponentStocks(recipe, byID)).Units()
	changed, err := bundle.ApplyDerivedStock(stock)
	if err != nil || !changed {
		return bundle.Stock, false, err
	}
	if err := repos.Variants().SaveWithLock(ctx, bundle); err != nil {
		return 0, false, err
	}
	if err := repos.Events().Record(ctx, bundle.PopDomainEvents()...); err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

// RecomputeForComponent recomputes every bundle that uses componentID and
// returns how many changed. Failures of individual bundles are joined so one
// bad bundle does not block the rest.
func (p *StockPropagator) RecomputeForComponent(ctx context.Context, componentID uuid.UUID) (int, error) {
	bundleIDs, err := p.components.FindBundlesByComponent(ctx, componentID)
	if err != nil {
		return 0, fmt.Errorf("find bundles of component %s: %w", componentID, err)
	}

	var (
		changedCount int
		errs         []error
	)
	for _, id := range bundleIDs {
		_, changed, err := p.Recompute(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			changedCount++
		}
	}
	return changedCount, errors.Join(errs...)
}
