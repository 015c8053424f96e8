package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/bundlesync/engine/internal/application/transaction"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestionService applies marketplace order lines to stock exactly once.
//
// The dedupe record and the stock decrement commit in one transaction, so a
// line is either fully applied and recorded or not applied at all. Webhook
// deliveries and feed pulls go through the same path and the dedupe record
// is the only duplicate suppression.
type IngestionService struct {
	scope    transaction.Scope
	logger   *zap.Logger
	attempts int
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(scope transaction.Scope, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		scope:    scope,
		logger:   logger,
		attempts: transaction.DefaultConflictAttempts,
	}
}

// shortfall is a clamped decrement, logged once the transaction commits
type shortfall struct {
	sku string
	out catalog.DecrementOutcome
}

// ApplyOrderLine applies one order line and reports Applied, AlreadyApplied
// or SkuUnknown. Only malformed input and infrastructure failures are errors.
func (s *IngestionService) ApplyOrderLine(ctx context.Context, in order.LineInput) (*ApplyOutcome, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		outcome *ApplyOutcome
		clamps  []shortfall
	)
	err := transaction.RetryOnConflict(ctx, s.attempts, func() error {
		return s.scope.Execute(ctx, func(repos transaction.Repositories) error {
			var err error
			outcome, clamps, err = apply(ctx, repos, in)
			return err
		})
	})
	// A concurrent delivery of the same line won the insert.
	if errors.Is(err, shared.ErrAlreadyExists) {
		s.logger.Debug("order line applied concurrently",
			zap.String("external_line_id", in.ExternalLineID),
		)
		return &ApplyOutcome{ExternalLineID: in.ExternalLineID, Result: order.ApplyResultAlreadyApplied}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply order line %s: %w", in.ExternalLineID, err)
	}

	for _, c := range clamps {
		s.logger.Warn("order line oversold stock, clamped at zero",
			zap.String("external_line_id", in.ExternalLineID),
			zap.String("order_id", in.OrderID),
			zap.String("sku", c.sku),
			zap.Int("requested", c.out.Requested),
			zap.Int("available", c.out.Before),
			zap.Int("shortfall", c.out.Shortfall),
		)
	}

	switch outcome.Result {
	case order.ApplyResultApplied:
		s.logger.Info("order line applied",
			zap.String("external_line_id", in.ExternalLineID),
			zap.String("sku", in.SKU),
			zap.Int("quantity", in.Quantity),
		)
	case order.ApplyResultSkuUnknown:
		s.logger.Warn("order line sku unknown",
			zap.String("external_line_id", in.ExternalLineID),
			zap.String("sku", in.SKU),
		)
	default:
		s.logger.Debug("order line already applied",
			zap.String("external_line_id", in.ExternalLineID),
		)
	}
	return outcome, nil
}

// ApplyBatch applies lines in order. A failing line is reported in its
// outcome and does not stop the rest.
func (s *IngestionService) ApplyBatch(ctx context.Context, lines []order.LineInput) BatchOutcome {
	var batch BatchOutcome
	for _, in := range lines {
		outcome, err := s.ApplyOrderLine(ctx, in)
		if err != nil {
			s.logger.Error("order line failed",
				zap.String("external_line_id", in.ExternalLineID),
				zap.Error(err),
			)
			batch.add(ApplyOutcome{ExternalLineID: in.ExternalLineID, Error: err.Error()})
			continue
		}
		batch.add(*outcome)
	}
	return batch
}

func apply(ctx context.Context, repos transaction.Repositories, in order.LineInput) (*ApplyOutcome, []shortfall, error) {
	existing, err := repos.OrderLines().FindByExternalLineIDForUpdate(ctx, in.ExternalLineID)
	switch {
	case err == nil:
		if existing.UpdateStatus(in.Status) {
			if err := repos.OrderLines().Update(ctx, existing); err != nil {
				return nil, nil, err
			}
		}
		return &ApplyOutcome{
			ExternalLineID: existing.ExternalLineID,
			Result:         order.ApplyResultAlreadyApplied,
			VariantID:      existing.VariantID,
			Clamped:        existing.Clamped,
		}, nil, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, nil, err
	}

	variant, err := repos.Variants().FindBySKU(ctx, in.SKU)
	if errors.Is(err, shared.ErrNotFound) {
		line := order.NewUnknownSkuLine(in)
		if err := repos.OrderLines().Create(ctx, line); err != nil {
			return nil, nil, err
		}
		return &ApplyOutcome{ExternalLineID: line.ExternalLineID, Result: order.ApplyResultSkuUnknown}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	need, err := unitsToRemove(ctx, repos, variant, in.Quantity)
	if err != nil {
		return nil, nil, err
	}
	clamps, err := decrement(ctx, repos, need, in.ExternalLineID)
	if err != nil {
		return nil, nil, err
	}

	line := order.NewAppliedLine(in, variant.ID, len(clamps) > 0)
	if err := repos.OrderLines().Create(ctx, line); err != nil {
		return nil, nil, err
	}
	return &ApplyOutcome{
		ExternalLineID: line.ExternalLineID,
		Result:         order.ApplyResultApplied,
		VariantID:      line.VariantID,
		Clamped:        line.Clamped,
	}, clamps, nil
}

// unitsToRemove maps each stock-holding variant to the units a sale of qty
// takes from it. A bundle sale draws on its components.
func unitsToRemove(ctx context.Context, repos transaction.Repositories, v *catalog.Variant, qty int) (map[uuid.UUID]int, error) {
	if !v.IsBundle() {
		return map[uuid.UUID]int{v.ID: qty}, nil
	}
	recipe, err := repos.Components().FindByBundle(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	need := make(map[uuid.UUID]int, len(recipe))
	for _, line := range recipe {
		need[line.ComponentVariantID] += line.Quantity * qty
	}
	return need, nil
}

// decrement locks the variants in ascending ID order, removes the needed
// units and records their events.
func decrement(ctx context.Context, repos transaction.Repositories, need map[uuid.UUID]int, ref string) ([]shortfall, error) {
	if len(need) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	locked, err := repos.Variants().FindByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(ids) {
		return nil, shared.NewDomainError(shared.ErrNotFound.Code, "Component variant missing while applying order line "+ref)
	}

	var clamps []shortfall
	for _, v := range locked {
		loaded := v.Version
		out, err := v.Decrement(need[v.ID], ref)
		if err != nil {
			return nil, err
		}
		if out.Clamped() {
			clamps = append(clamps, shortfall{sku: v.SKU, out: out})
		}
		if v.Version != loaded {
			if err := repos.Variants().SaveWithLock(ctx, v); err != nil {
				return nil, err
			}
		}
		if err := repos.Events().Record(ctx, v.PopDomainEvents()...); err != nil {
			return nil, err
		}
	}
	return clamps, nil
}
