package handler

import (
	"github.com/bundlesync/engine/internal/application/catalog"
	"github.com/gin-gonic/gin"
)

// CatalogHandler serves products, variants and bundle recipes
type CatalogHandler struct {
	BaseHandler
	catalog    *catalog.CatalogService
	propagator *catalog.StockPropagator
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(service *catalog.CatalogService, propagator *catalog.StockPropagator) *CatalogHandler {
	return &CatalogHandler{
		catalog:    service,
		propagator: propagator,
	}
}

// CreateProduct handles POST /products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if !h.bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, product)
}

// CreateVariant handles POST /variants
func (h *CatalogHandler) CreateVariant(c *gin.Context) {
	var req catalog.CreateVariantRequest
	if !h.bindJSON(c, &req) {
		return
	}

	variant, err := h.catalog.CreateVariant(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, variant)
}

// GetVariant handles GET /variants/:id
func (h *CatalogHandler) GetVariant(c *gin.Context) {
	id, ok := h.pathID(c, "variant")
	if !ok {
		return
	}

	variant, err := h.catalog.GetVariant(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, variant)
}

// AdjustStock handles PUT /variants/:id/stock. Bundles are refused; their
// stock follows the components.
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	id, ok := h.pathID(c, "variant")
	if !ok {
		return
	}
	var req catalog.AdjustStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	variant, err := h.catalog.AdjustStock(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, variant)
}

// SetPrice handles PUT /variants/:id/price
func (h *CatalogHandler) SetPrice(c *gin.Context) {
	id, ok := h.pathID(c, "variant")
	if !ok {
		return
	}
	var req catalog.SetPriceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	variant, err := h.catalog.SetPrice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, variant)
}

// Recompute handles POST /variants/:id/recompute
func (h *CatalogHandler) Recompute(c *gin.Context) {
	id, ok := h.pathID(c, "bundle")
	if !ok {
		return
	}

	stock, changed, err := h.propagator.Recompute(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, catalog.RecomputeResponse{
		BundleVariantID: id,
		Stock:           stock,
		Changed:         changed,
	})
}

// ReplaceRecipe handles PUT /bundles/:id/components
func (h *CatalogHandler) ReplaceRecipe(c *gin.Context) {
	id, ok := h.pathID(c, "bundle")
	if !ok {
		return
	}
	var req catalog.ReplaceRecipeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	recipe, err := h.catalog.ReplaceRecipe(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, recipe)
}
