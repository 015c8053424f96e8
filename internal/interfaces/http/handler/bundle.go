package handler

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/application/bundling"
	"github.com/bundlesync/engine/internal/infrastructure/logger"
	"github.com/bundlesync/engine/internal/infrastructure/snapshot"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/bundlesync/engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BundleHandler serves bundle generation and promotion
type BundleHandler struct {
	BaseHandler
	bundles *bundling.BundleService
	metrics *telemetry.EngineMetrics
}

// NewBundleHandler creates a new BundleHandler. metrics may be nil.
func NewBundleHandler(bundles *bundling.BundleService, metrics *telemetry.EngineMetrics) *BundleHandler {
	return &BundleHandler{
		bundles: bundles,
		metrics: metrics,
	}
}

// UploadGenerateForm is the multipart variant of a generate request
type UploadGenerateForm struct {
	TopN   int  `form:"top_n" binding:"min=0,max=500"`
	Enrich bool `form:"enrich"`
}

// Generate handles POST /bundles/generate.
//
// A JSON body carries products and orders inline, or neither to use the
// stored catalog. A multipart body carries them as a workbook in the file
// field. With ?format=xlsx the proposals come back as a workbook download.
func (h *BundleHandler) Generate(c *gin.Context) {
	var req bundling.GenerateRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var ok bool
		if req, ok = h.readUpload(c); !ok {
			return
		}
	} else if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}

	resp, err := h.generate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		var buf bytes.Buffer
		if err := snapshot.WriteProposals(&buf, resp.Candidates); err != nil {
			h.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="bundles.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
		return
	}
	h.Success(c, resp)
}

func (h *BundleHandler) readUpload(c *gin.Context) (bundling.GenerateRequest, bool) {
	var form UploadGenerateForm
	if err := c.ShouldBind(&form); err != nil {
		middleware.HandleValidationError(c, err)
		return bundling.GenerateRequest{}, false
	}
	header, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "A workbook is required in the file field")
		return bundling.GenerateRequest{}, false
	}
	file, err := header.Open()
	if err != nil {
		h.BadRequest(c, "Workbook could not be opened")
		return bundling.GenerateRequest{}, false
	}
	defer file.Close()

	snap, err := snapshot.Read(file)
	if err != nil {
		h.BadRequest(c, err.Error())
		return bundling.GenerateRequest{}, false
	}
	if len(snap.Skipped) > 0 {
		logger.L(c.Request.Context()).Warn("snapshot rows skipped",
			zap.Int("count", len(snap.Skipped)),
			zap.Any("rows", snap.Skipped),
		)
	}
	return bundling.GenerateRequest{
		Products: snap.Products,
		Orders:   snap.Orders,
		TopN:     form.TopN,
		Enrich:   form.Enrich,
	}, true
}

func (h *BundleHandler) generate(ctx context.Context, req bundling.GenerateRequest) (*bundling.GenerateResponse, error) {
	start := time.Now()
	resp, err := h.bundles.GenerateBundles(ctx, req)
	if err == nil && h.metrics != nil {
		h.metrics.RecordGeneration(ctx, time.Since(start), resp.Enriched)
	}
	return resp, err
}

// Promote handles POST /bundles/promote, turning a proposal into a catalog
// bundle with its recipe.
func (h *BundleHandler) Promote(c *gin.Context) {
	var req bundling.PromoteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.bundles.Promote(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}
