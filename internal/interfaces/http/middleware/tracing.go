// Package middleware provides HTTP middleware for the sync engine API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps the request ID copied onto spans.
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "bundlesync",
		Enabled:     true,
	}
}

// TracingWithConfig returns OpenTelemetry tracing middleware. otelgin opens
// a span named after the route pattern; the enricher behind it runs inside
// that span and adds:
//   - request_id
//   - listing.id when the route carries a listing :id
//   - an Error status for 5xx responses
func TracingWithConfig(cfg TracingConfig) gin.HandlersChain {
	if !cfg.Enabled {
		return gin.HandlersChain{func(c *gin.Context) { c.Next() }}
	}
	return gin.HandlersChain{otelgin.Middleware(cfg.ServiceName), spanEnricher}
}

func spanEnricher(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		enrichSpan(c, span)
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := GetRequestID(c); requestID != "" {
		if len(requestID) > MaxRequestIDLength {
			requestID = requestID[:MaxRequestIDLength]
		}
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if listingID := listingParam(c); listingID != "" {
		span.SetAttributes(telemetry.AttrListingID.String(listingID))
	}
	if status := c.Writer.Status(); status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// listingParam returns the :id of a listing route, validated as a UUID so
// arbitrary path text never lands on a span.
func listingParam(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), "/api/v1/listings/:id") {
		return ""
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ""
	}
	return id.String()
}
