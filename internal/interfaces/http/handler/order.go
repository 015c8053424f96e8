package handler

import (
	"context"
	"net/http"

	"github.com/bundlesync/engine/internal/application/order"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/bundlesync/engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Order line sources, as recorded on metrics
const (
	sourceAPI     = "api"
	sourceWebhook = "webhook"
	sourcePull    = "pull"
)

// OrderHandler ingests marketplace order lines
type OrderHandler struct {
	BaseHandler
	ingestion *order.IngestionService
	pull      *order.PullService
	metrics   *telemetry.EngineMetrics
}

// NewOrderHandler creates a new OrderHandler. pull and metrics may be nil.
func NewOrderHandler(ingestion *order.IngestionService, pull *order.PullService, metrics *telemetry.EngineMetrics) *OrderHandler {
	return &OrderHandler{
		ingestion: ingestion,
		pull:      pull,
		metrics:   metrics,
	}
}

// ApplyLines handles POST /orders/lines. Every line gets an outcome; a
// failed line does not fail the request.
func (h *OrderHandler) ApplyLines(c *gin.Context) {
	var req order.ApplyOrderLinesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	outcome := h.ingestion.ApplyBatch(c.Request.Context(), req.Lines)
	h.record(c.Request.Context(), sourceAPI, outcome)

	h.Success(c, outcome)
}

// Webhook handles POST /webhooks/orders. A malformed line rejects the whole
// delivery with 400 before anything is applied. When a line fails for any
// other reason the delivery is refused with 503 so the marketplace redelivers
// it; lines already applied are skipped by their external ID on the next pass.
func (h *OrderHandler) Webhook(c *gin.Context) {
	var req order.ApplyOrderLinesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	for _, line := range req.Lines {
		if err := line.Validate(); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	outcome := h.ingestion.ApplyBatch(c.Request.Context(), req.Lines)
	h.record(c.Request.Context(), sourceWebhook, outcome)

	if outcome.Failed > 0 {
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeUpstreamUnavailable, "Some order lines could not be applied", middleware.GetRequestID(c))
		resp.Data = outcome
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	h.Success(c, outcome)
}

// Pull handles POST /orders/pull, running one order-feed pull now.
func (h *OrderHandler) Pull(c *gin.Context) {
	if h.pull == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeAccountNotConfigured, "No marketplace account is configured")
		return
	}

	outcome, err := h.pull.Pull(c.Request.Context())
	h.record(c.Request.Context(), sourcePull, outcome)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, outcome)
}

func (h *OrderHandler) record(ctx context.Context, source string, b order.BatchOutcome) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordOrderLines(ctx, source, telemetry.OrderLineCounts{
		Applied:        b.Applied,
		AlreadyApplied: b.AlreadyApplied,
		SkuUnknown:     b.SkuUnknown,
		Failed:         b.Failed,
		Clamped:        b.Clamped(),
	})
}
