package handler

import (
	"github.com/bundlesync/engine/internal/application/listing"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListingHandler serves marketplace listings and their sync cycle
type ListingHandler struct {
	BaseHandler
	sync *listing.SyncService
}

// NewListingHandler creates a new ListingHandler
func NewListingHandler(sync *listing.SyncService) *ListingHandler {
	return &ListingHandler{sync: sync}
}

// ListListingsQuery filters GET /listings
type ListListingsQuery struct {
	dto.ListRequest
	AccountID string `form:"account_id" binding:"omitempty,max=64"`
	VariantID string `form:"variant_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=draft pending_create pending_update active failed archived"`
	Dirty     *bool  `form:"dirty"`
}

func (q ListListingsQuery) filter() shared.Filter {
	f := shared.DefaultFilter()
	if q.Page > 0 {
		f.Page = q.Page
	}
	if q.PageSize > 0 {
		f.PageSize = q.PageSize
	}
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.OrderDir != "" {
		f.OrderDir = q.OrderDir
	}
	if q.AccountID != "" {
		f.Filters["account_id"] = q.AccountID
	}
	if q.VariantID != "" {
		f.Filters["variant_id"] = uuid.MustParse(q.VariantID)
	}
	if q.Status != "" {
		f.Filters["status"] = q.Status
	}
	if q.Dirty != nil {
		f.Filters["dirty"] = *q.Dirty
	}
	return f
}

// Create handles POST /listings. The listing starts as a draft; nothing is
// sent until it is synced.
func (h *ListingHandler) Create(c *gin.Context) {
	var req listing.CreateListingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.sync.CreateListing(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// List handles GET /listings
func (h *ListingHandler) List(c *gin.Context) {
	var q ListListingsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	filter := q.filter()

	listings, total, err := h.sync.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, listings, total, filter.Page, filter.PageSize)
}

// Get handles GET /listings/:id
func (h *ListingHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c, "listing")
	if !ok {
		return
	}

	resp, err := h.sync.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Update handles PUT /listings/:id
func (h *ListingHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "listing")
	if !ok {
		return
	}
	var req listing.UpdateListingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.sync.UpdateListing(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Sync handles POST /listings/:id/sync. The submission itself runs on the
// sync workers, so the answer is 202 with the listing's new state; Deferred
// reports that a cycle was already running and will resend when it ends.
func (h *ListingHandler) Sync(c *gin.Context) {
	id, ok := h.pathID(c, "listing")
	if !ok {
		return
	}

	resp, err := h.sync.SyncListing(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, resp)
}

// Archive handles POST /listings/:id/archive
func (h *ListingHandler) Archive(c *gin.Context) {
	id, ok := h.pathID(c, "listing")
	if !ok {
		return
	}

	resp, err := h.sync.Archive(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
