package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "bundlesync_http_requests_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
				out[route.AsString()+" "+status.Emit()] += dp.Value
			}
		}
	}
	return out
}

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{Meter: provider.Meter("test")})
	require.NoError(t, err)

	router := gin.New()
	router.Use(HTTPMetrics(m))
	router.GET("/api/v1/variants/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/v1/order-lines", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	serve(router, http.MethodGet, "/api/v1/variants/a", nil)
	serve(router, http.MethodGet, "/api/v1/variants/b", nil)
	serve(router, http.MethodPost, "/api/v1/order-lines", nil)
	serve(router, http.MethodGet, "/nowhere", nil)

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(2), counts["/api/v1/variants/:id 200"])
	assert.Equal(t, int64(1), counts["/api/v1/order-lines 400"])
	assert.Equal(t, int64(1), counts["unmatched 404"])
}

func TestHTTPMetrics_NilIsPassThrough(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
