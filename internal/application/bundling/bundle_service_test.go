package bundling

import (
	"context"
	"testing"
	"time"

	appcatalog "github.com/bundlesync/engine/internal/application/catalog"
	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, requests []bundling.EnrichmentRequest, maxSelected int) ([]bundling.EnrichmentResult, error) {
	args := m.Called(ctx, requests, maxSelected)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]bundling.EnrichmentResult), args.Error(1)
}

func seedCatalog(t *testing.T, store *testutil.Store) {
	t.Helper()
	ctx := context.Background()
	for _, sku := range []string{"A", "B"} {
		p, err := catalog.NewProduct("P-"+sku, "Cream "+sku)
		require.NoError(t, err)
		p.Classify("Acme", "Skin")
		require.NoError(t, store.Products.Save(ctx, p))

		v, err := catalog.NewSimpleVariant(p.ID, sku, decimal.NewFromInt(30), 10)
		require.NoError(t, err)
		require.NoError(t, store.Variants.Create(ctx, v))
	}
}

func newService(store *testutil.Store, enricher bundling.Enricher) *BundleService {
	return NewBundleService(store.Scope, store.Products, store.Variants, store.OrderLines, enricher, DefaultConfig(), zap.NewNop())
}

func TestBundleService_GenerateFromCatalog(t *testing.T) {
	store := testutil.NewStore(t)
	seedCatalog(t, store)
	svc := newService(store, nil)

	resp, err := svc.GenerateBundles(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Candidates)
	assert.Equal(t, resp.Feasible, len(resp.Candidates))
	for i, c := range resp.Candidates {
		assert.Positive(t, c.MaxProducibleUnits, c.SKU)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Candidates[i-1].Score, c.Score)
		}
	}
}

func TestBundleService_GenerateFromOrders(t *testing.T) {
	store := testutil.NewStore(t)
	seedCatalog(t, store)
	svc := newService(store, nil)
	ctx := context.Background()

	in := order.LineInput{OrderID: "O-1", SKU: "A", Quantity: 1, OccurredAt: time.Now()}
	a := in
	a.ExternalLineID = "O-1/1"
	b := in
	b.ExternalLineID, b.SKU = "O-1/2", "B"
	for _, line := range []order.LineInput{a, b} {
		v, err := store.Variants.FindBySKU(ctx, line.SKU)
		require.NoError(t, err)
		require.NoError(t, store.OrderLines.Create(ctx, order.NewAppliedLine(line, v.ID, false)))
	}

	resp, err := svc.GenerateBundles(ctx, GenerateRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Candidates)
	for _, c := range resp.Candidates {
		assert.Len(t, c.Items, 2, c.SKU)
	}
}

func TestBundleService_GenerateWithSuppliedSnapshot(t *testing.T) {
	svc := NewBundleService(nil, nil, nil, nil, nil, DefaultConfig(), zap.NewNop())
	stock := 10
	req := GenerateRequest{
		Products: []bundling.ProductSnapshot{{
			SKU: "A", Name: "Cream", Brand: "Acme", Category: "Skin",
			Price: decimal.NewFromInt(44), Stock: &stock, BundleEnabled: true, UnitsPerPack: 1,
		}},
		Pricing: &PricingRequest{CommissionRate: decimal.RequireFromString("0.10"), FixedCost: decimal.NewFromInt(12), MinPrice: decimal.NewFromInt(40)},
	}

	resp, err := svc.GenerateBundles(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 4)
	prices := make(map[string]decimal.Decimal)
	for _, c := range resp.Candidates {
		prices[c.SKU] = c.FinalPrice
	}
	// (88 + 12) / 0.9 = 111.111... rounds up to the cent
	assert.Equal(t, "111.12", prices["PACK-A-x2"].StringFixed(2))

	req.TopN = 1
	top, err := svc.GenerateBundles(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, top.Candidates, 1)
	assert.Equal(t, "PACK-A-x6", top.Candidates[0].SKU)

	_, err = svc.GenerateBundles(context.Background(), GenerateRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestBundleService_EnrichmentFallback(t *testing.T) {
	store := testutil.NewStore(t)
	seedCatalog(t, store)
	enricher := new(MockEnricher)
	enricher.On("Enrich", mock.Anything, mock.Anything, 5).Return(nil, bundling.ErrEnrichmentUnavailable)
	svc := newService(store, enricher)

	resp, err := svc.GenerateBundles(context.Background(), GenerateRequest{Enrich: true})
	require.NoError(t, err)
	assert.False(t, resp.Enriched)
	assert.NotEmpty(t, resp.FallbackReason)
	assert.LessOrEqual(t, len(resp.Candidates), 5)
	enricher.AssertExpectations(t)
}

func TestBundleService_Promote(t *testing.T) {
	store := testutil.NewStore(t)
	seedCatalog(t, store)
	svc := newService(store, nil)
	ctx := context.Background()

	generated, err := svc.GenerateBundles(ctx, GenerateRequest{})
	require.NoError(t, err)
	var pick bundling.Candidate
	for _, c := range generated.Candidates {
		if len(c.Items) == 2 {
			pick = c
			break
		}
	}
	require.NotEmpty(t, pick.SKU)

	resp, err := svc.Promote(ctx, PromoteRequest{Candidate: pick})
	require.NoError(t, err)
	assert.Equal(t, pick.MaxProducibleUnits, resp.Capacity)

	propagator := appcatalog.NewStockPropagator(store.Scope, store.Components, zap.NewNop())
	store.Drain(t, appcatalog.NewPropagationHandler(propagator, zap.NewNop()))

	bundle, err := store.Variants.FindByID(ctx, resp.VariantID)
	require.NoError(t, err)
	assert.True(t, bundle.IsBundle())
	assert.Equal(t, resp.Capacity, bundle.Stock)

	t.Run("unknown component is rejected", func(t *testing.T) {
		bad := pick
		bad.SKU = "PACK-Z"
		bad.Items = []bundling.CandidateItem{{SKU: "Z", Quantity: 1}}
		_, err := svc.Promote(ctx, PromoteRequest{Candidate: bad})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("infeasible candidate is refused", func(t *testing.T) {
		bad := pick
		bad.SKU = "PACK-HUGE"
		bad.Items = []bundling.CandidateItem{{SKU: "A", Quantity: 50}}
		_, err := svc.Promote(ctx, PromoteRequest{Candidate: bad})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}
