package handler

import (
	"time"

	"github.com/bundlesync/engine/internal/application/event"
	"github.com/gin-gonic/gin"
)

const defaultOutboxRetention = 7 * 24 * time.Hour

// OutboxHandler exposes the event outbox for operators
type OutboxHandler struct {
	BaseHandler
	outbox *event.OutboxService
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// PurgeRequest selects how old sent entries must be to be removed.
// Retention is a Go duration string such as "168h".
type PurgeRequest struct {
	Retention string `form:"retention" json:"retention"`
}

// CountResponse reports how many entries an operation touched
type CountResponse struct {
	Count int64 `json:"count"`
}

// Stats handles GET /admin/outbox/stats
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

// DeadLetters handles GET /admin/outbox/dead
func (h *OutboxHandler) DeadLetters(c *gin.Context) {
	var q event.DeadLetterQuery
	if !h.bindQuery(c, &q) {
		return
	}

	page, err := h.outbox.DeadLetters(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Entries, page.Total, page.Page, page.PageSize)
}

// Requeue handles POST /admin/outbox/:id/requeue
func (h *OutboxHandler) Requeue(c *gin.Context) {
	id, ok := h.pathID(c, "entry")
	if !ok {
		return
	}

	entry, err := h.outbox.Requeue(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entry)
}

// RequeueAll handles POST /admin/outbox/requeue-all
func (h *OutboxHandler) RequeueAll(c *gin.Context) {
	n, err := h.outbox.RequeueAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CountResponse{Count: n})
}

// Purge handles POST /admin/outbox/purge. Without a retention the default
// of a week applies.
func (h *OutboxHandler) Purge(c *gin.Context) {
	var req PurgeRequest
	if !h.bindQuery(c, &req) {
		return
	}

	retention := defaultOutboxRetention
	if req.Retention != "" {
		d, err := time.ParseDuration(req.Retention)
		if err != nil {
			h.BadRequest(c, "Invalid retention duration")
			return
		}
		retention = d
	}

	n, err := h.outbox.Purge(c.Request.Context(), retention)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CountResponse{Count: n})
}
