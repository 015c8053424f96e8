package middleware

import (
	"time"

	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, keeping raw paths out of
// metric attributes.
const unmatchedRoute = "unmatched"

// HTTPMetrics records the count and latency of every request on m, labelled
// by method, route pattern and status. A nil m yields a pass-through.
func HTTPMetrics(m *telemetry.EngineMetrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RecordHTTPRequest(c.Request.Context(), c.Request.Method, routePattern(c), c.Writer.Status(), time.Since(start))
	}
}

func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
