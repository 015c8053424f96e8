package handler

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/bundlesync/engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// DBHealth is the slice of *sql.DB the health check reads.
type DBHealth interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// SystemHandler handles liveness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	db        DBHealth
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. db may be nil, in which case
// health only reports the process itself.
func NewSystemHandler(name, version string, db DBHealth) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		db:        db,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// HealthResponse reports process and database health
type HealthResponse struct {
	Status   string     `json:"status"`
	Database string     `json:"database,omitempty"`
	Pool     *PoolStats `json:"pool,omitempty"`
}

// PoolStats is a snapshot of the database connection pool.
type PoolStats struct {
	Open      int    `json:"open"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	WaitCount int64  `json:"wait_count"`
	WaitTime  string `json:"wait_time"`
}

// GetSystemInfo handles GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	h.Success(c, info)
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			r := dto.NewErrorResponseWithRequestID(dto.ErrCodeUpstreamUnavailable, "Database is unreachable", middleware.GetRequestID(c))
			r.Data = resp
			c.JSON(http.StatusServiceUnavailable, r)
			return
		}
		resp.Database = "ok"
		st := h.db.Stats()
		resp.Pool = &PoolStats{
			Open:      st.OpenConnections,
			InUse:     st.InUse,
			Idle:      st.Idle,
			WaitCount: st.WaitCount,
			WaitTime:  st.WaitDuration.String(),
		}
	}

	h.Success(c, resp)
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping handles GET /api/v1/system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	h.Success(c, response)
}
