package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bundlesync/engine/internal/application/bundling"
	domainbundling "github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/infrastructure/snapshot"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/bundlesync/engine/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newBundleEngine(t *testing.T, metrics *telemetry.EngineMetrics) (*gin.Engine, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore(t)
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

	svc := bundling.NewBundleService(store.Scope, store.Products, store.Variants, store.OrderLines, nil, bundling.DefaultConfig(), zap.NewNop())
	h := NewBundleHandler(svc, metrics)
	r := gin.New()
	r.POST("/bundles/generate", h.Generate)
	r.POST("/bundles/promote", h.Promote)
	return r, store
}

func snapshotUpload(t *testing.T, query string) *http.Request {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", snapshot.ProductsSheet))
	rows := [][]any{
		{"SKU", "Name", "Brand", "Category", "Price", "Stock", "Bundle enabled"},
		{"X", "Serum", "Glow", "Skin", "12.50", 20, "yes"},
		{"Y", "Toner", "Glow", "Skin", "8", 20, "yes"},
		{"Z", "Broken", "Glow", "Skin", "abc"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(snapshot.ProductsSheet, cell, &r))
	}
	var book bytes.Buffer
	_, err := f.WriteTo(&book)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "snapshot.xlsx")
	require.NoError(t, err)
	_, err = part.Write(book.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("top_n", "5"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/bundles/generate"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestBundleHandler_GenerateFromCatalog(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{
		Meter: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"),
	})
	require.NoError(t, err)
	r, _ := newBundleEngine(t, metrics)

	w := doJSON(t, r, http.MethodPost, "/bundles/generate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeData[bundling.GenerateResponse](t, w)
	require.NotEmpty(t, got.Candidates)
	assert.False(t, got.Enriched)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	names := make([]string, 0)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "bundlesync_bundle_generation_duration_seconds")
}

func TestBundleHandler_GenerateInline(t *testing.T) {
	r, _ := newBundleEngine(t, nil)
	stock := 6

	w := doJSON(t, r, http.MethodPost, "/bundles/generate", bundling.GenerateRequest{
		Products: []domainbundling.ProductSnapshot{
			{SKU: "M", Name: "Mask", Brand: "Leaf", Price: decimal.NewFromInt(5), Stock: &stock, BundleEnabled: true, UnitsPerPack: 1},
			{SKU: "N", Name: "Balm", Brand: "Leaf", Price: decimal.NewFromInt(7), Stock: &stock, BundleEnabled: true, UnitsPerPack: 1},
		},
		Orders: []domainbundling.OrderSnapshot{
			{OrderID: "1", SKU: "M", Quantity: 1},
			{OrderID: "1", SKU: "N", Quantity: 1},
		},
		TopN: 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeData[bundling.GenerateResponse](t, w)
	require.NotEmpty(t, got.Candidates)
	assert.LessOrEqual(t, len(got.Candidates), 2)
	for _, c := range got.Candidates {
		assert.Equal(t, "Leaf", c.Brand)
	}
}

func TestBundleHandler_GenerateFromUpload(t *testing.T) {
	r, _ := newBundleEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, snapshotUpload(t, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeData[bundling.GenerateResponse](t, w)
	require.NotEmpty(t, got.Candidates)
	for _, c := range got.Candidates {
		assert.Equal(t, "Glow", c.Brand)
	}
}

func TestBundleHandler_GenerateWorkbookResponse(t *testing.T) {
	r, _ := newBundleEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, snapshotUpload(t, "?format=xlsx"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(snapshot.ProposalsSheet)
	require.NoError(t, err)
	assert.Greater(t, len(rows), 1)
}

func TestBundleHandler_UploadErrors(t *testing.T) {
	r, _ := newBundleEngine(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("top_n", "3"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/bundles/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body.Reset()
	mw = multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/bundles/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, errorCode(t, w))
}

func TestBundleHandler_Promote(t *testing.T) {
	r, store := newBundleEngine(t, nil)

	w := doJSON(t, r, http.MethodPost, "/bundles/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	candidates := decodeData[bundling.GenerateResponse](t, w).Candidates
	require.NotEmpty(t, candidates)

	w = doJSON(t, r, http.MethodPost, "/bundles/promote", bundling.PromoteRequest{Candidate: candidates[0]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decodeData[bundling.PromoteResponse](t, w)
	assert.Equal(t, candidates[0].SKU, got.SKU)
	assert.Positive(t, got.Capacity)

	v, err := store.Variants.FindByID(context.Background(), got.VariantID)
	require.NoError(t, err)
	assert.Equal(t, catalog.VariantKindBundle, v.Kind)

	w = doJSON(t, r, http.MethodPost, "/bundles/promote", bundling.PromoteRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
