package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	appcatalog "github.com/bundlesync/engine/internal/application/catalog"
	apporder "github.com/bundlesync/engine/internal/application/order"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stockFixture struct {
	store     *testutil.Store
	ingestion *apporder.IngestionService
	handler   *appcatalog.PropagationHandler
	productID uuid.UUID
}

func newStockFixture(t *testing.T) *stockFixture {
	t.Helper()
	store := NewTestDB(t).Store()
	log := zap.NewNop()

	p, err := catalog.NewProduct("P-1", "Hair care")
	require.NoError(t, err)
	require.NoError(t, store.Products.Save(context.Background(), p))

	return &stockFixture{
		store:     store,
		ingestion: apporder.NewIngestionService(store.Scope, log),
		handler:   appcatalog.NewPropagationHandler(appcatalog.NewStockPropagator(store.Scope, store.Components, log), log),
		productID: p.ID,
	}
}

func (f *stockFixture) simple(t *testing.T, sku string, stock int) *catalog.Variant {
	t.Helper()
	v, err := catalog.NewSimpleVariant(f.productID, sku, decimal.NewFromInt(10), stock)
	require.NoError(t, err)
	require.NoError(t, f.store.Variants.Create(context.Background(), v))
	return v
}

func (f *stockFixture) bundle(t *testing.T, sku string, parts map[*catalog.Variant]int) *catalog.Variant {
	t.Helper()
	ctx := context.Background()
	b, err := catalog.NewBundleVariant(f.productID, sku, decimal.NewFromInt(25))
	require.NoError(t, err)
	require.NoError(t, f.store.Variants.Create(ctx, b))

	var recipe []*catalog.BundleComponent
	for v, qty := range parts {
		line, err := catalog.NewBundleComponent(b, v, qty)
		require.NoError(t, err)
		recipe = append(recipe, line)
	}
	require.NoError(t, f.store.Components.ReplaceRecipe(ctx, b.ID, recipe))
	_, _, err = appcatalog.NewStockPropagator(f.store.Scope, f.store.Components, zap.NewNop()).Recompute(ctx, b.ID)
	require.NoError(t, err)
	return b
}

func (f *stockFixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	v, err := f.store.Variants.FindByID(context.Background(), id)
	require.NoError(t, err)
	return v.Stock
}

// applyConcurrently runs every line on its own goroutine and collects the outcomes.
func (f *stockFixture) applyConcurrently(t *testing.T, lines []order.LineInput) []*apporder.ApplyOutcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	outcomes := make([]*apporder.ApplyOutcome, len(lines))
	errs := make([]error, len(lines))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, in := range lines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = f.ingestion.ApplyOrderLine(ctx, in)
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "line %s", lines[i].ExternalLineID)
	}
	return outcomes
}

func saleLine(id, sku string, qty int) order.LineInput {
	return order.LineInput{
		OrderID:        "O-" + id,
		ExternalLineID: id,
		SKU:            sku,
		Quantity:       qty,
		OccurredAt:     time.Now(),
	}
}

func countResults(outcomes []*apporder.ApplyOutcome) map[order.ApplyResult]int {
	counts := make(map[order.ApplyResult]int)
	for _, o := range outcomes {
		counts[o.Result]++
	}
	return counts
}

func TestOrderIngestion_ConcurrentSalesOnSharedComponents(t *testing.T) {
	f := newStockFixture(t)
	shampoo := f.simple(t, "SHAMPOO", 100)
	conditioner := f.simple(t, "CONDITIONER", 60)
	duo := f.bundle(t, "DUO", map[*catalog.Variant]int{shampoo: 1, conditioner: 1})
	double := f.bundle(t, "DOUBLE-SHAMPOO", map[*catalog.Variant]int{shampoo: 2})
	require.Equal(t, 60, f.stock(t, duo.ID))
	require.Equal(t, 50, f.stock(t, double.ID))

	// 10 duo sales, 10 double sales and 10 single shampoo sales race for
	// the shampoo row: 10 + 20 + 10 units.
	var lines []order.LineInput
	for i := 0; i < 10; i++ {
		lines = append(lines,
			saleLine(fmt.Sprintf("duo-%d", i), "DUO", 1),
			saleLine(fmt.Sprintf("double-%d", i), "DOUBLE-SHAMPOO", 1),
			saleLine(fmt.Sprintf("single-%d", i), "SHAMPOO", 1),
		)
	}
	outcomes := f.applyConcurrently(t, lines)
	assert.Equal(t, 30, countResults(outcomes)[order.ApplyResultApplied])

	assert.Equal(t, 60, f.stock(t, shampoo.ID))
	assert.Equal(t, 50, f.stock(t, conditioner.ID))

	f.store.Drain(t, f.handler)
	assert.Equal(t, 50, f.stock(t, duo.ID))
	assert.Equal(t, 30, f.stock(t, double.ID))
}

func TestOrderIngestion_ConcurrentOversellClampsAtZero(t *testing.T) {
	f := newStockFixture(t)
	serum := f.simple(t, "SERUM", 5)

	lines := make([]order.LineInput, 0, 8)
	for i := 0; i < 8; i++ {
		lines = append(lines, saleLine(fmt.Sprintf("serum-%d", i), "SERUM", 1))
	}
	outcomes := f.applyConcurrently(t, lines)

	clamped := 0
	for _, o := range outcomes {
		assert.Equal(t, order.ApplyResultApplied, o.Result)
		if o.Clamped {
			clamped++
		}
	}
	assert.Equal(t, 3, clamped)
	assert.Equal(t, 0, f.stock(t, serum.ID))

	reconciliations := 0
	for _, e := range f.store.PendingEvents(t) {
		if e.EventType() == catalog.EventTypeStockReconciliationRequired {
			reconciliations++
		}
	}
	assert.Equal(t, 3, reconciliations)
}

func TestOrderIngestion_ConcurrentRedeliveryAppliesOnce(t *testing.T) {
	f := newStockFixture(t)
	mask := f.simple(t, "MASK", 20)

	lines := make([]order.LineInput, 0, 12)
	for i := 0; i < 12; i++ {
		lines = append(lines, saleLine("mask-1", "MASK", 3))
	}
	outcomes := f.applyConcurrently(t, lines)

	counts := countResults(outcomes)
	assert.Equal(t, 1, counts[order.ApplyResultApplied])
	assert.Equal(t, 11, counts[order.ApplyResultAlreadyApplied])
	assert.Equal(t, 17, f.stock(t, mask.ID))

	line, err := f.store.OrderLines.FindByExternalLineID(context.Background(), "mask-1")
	require.NoError(t, err)
	require.NotNil(t, line.VariantID)
	assert.Equal(t, mask.ID, *line.VariantID)
}

func TestOrderIngestion_UnknownSkuRecordedOnce(t *testing.T) {
	f := newStockFixture(t)

	outcomes := f.applyConcurrently(t, []order.LineInput{
		saleLine("ghost-1", "GHOST", 1),
		saleLine("ghost-1", "GHOST", 1),
		saleLine("ghost-1", "GHOST", 1),
	})
	counts := countResults(outcomes)
	assert.Equal(t, 1, counts[order.ApplyResultSkuUnknown])
	assert.Equal(t, 2, counts[order.ApplyResultAlreadyApplied])
}
