package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func fixedClock(rl *RateLimiter, at *time.Time) {
	rl.now = func() time.Time { return *at }
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)
	fixedClock(rl, &now)

	for i := 2; i >= 0; i-- {
		ok, remaining := rl.Allow("10.0.0.1")
		assert.True(t, ok)
		assert.Equal(t, i, remaining)
	}
	ok, _ := rl.Allow("10.0.0.1")
	assert.False(t, ok, "bucket is empty")

	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(20 * time.Second)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok, "one token refills every 20s")
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	fixedClock(rl, &now)

	rl.Allow("a")
	now = now.Add(90 * time.Second)
	rl.Allow("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.clients, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/api/v1/listings", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/api/v1/listings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	serve(router, http.MethodGet, "/api/v1/listings", nil)
	w = serve(router, http.MethodGet, "/api/v1/listings", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
}

func TestRateLimitByKey(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	router := gin.New()
	router.Use(RateLimitByKey(rl, func(c *gin.Context) string { return c.Param("account") }))
	router.POST("/webhooks/:account", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPost, "/webhooks/a", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/webhooks/a", nil).Code)
	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPost, "/webhooks/b", nil).Code)
}
