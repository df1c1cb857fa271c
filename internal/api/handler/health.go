package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/database"
)

// KeeperStats reports the counters of the background keepers.
type KeeperStats interface {
	Metrics() map[string]map[string]interface{}
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

type HealthHandler struct {
	db      *gorm.DB
	cache   *database.Cache
	engine  *engine.Engine
	keepers KeeperStats
	clients ClientCounter
}

func NewHealthHandler(db *gorm.DB, cache *database.Cache, eng *engine.Engine, keepers KeeperStats, clients ClientCounter) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cache:   cache,
		engine:  eng,
		keepers: keepers,
		clients: clients,
	}
}

// ServiceStatus represents the health status of a single dependency
type ServiceStatus struct {
	Status  string `json:"status"` // ok, degraded, down
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// AggregatedHealthResponse represents the overall system health
type AggregatedHealthResponse struct {
	Status    string                            `json:"status"` // healthy, degraded, unhealthy
	Services  map[string]ServiceStatus          `json:"services"`
	Keepers   map[string]map[string]interface{} `json:"keepers,omitempty"`
	WSClients int                               `json:"wsClients"`
	Timestamp int64                             `json:"timestamp"`
}

// GetHealth returns a liveness check for this process only
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "vammperp-api",
	})
}

// GetAggregatedHealth checks every dependency
// GET /health/all
func (h *HealthHandler) GetAggregatedHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]ServiceStatus{
		"database": h.checkDatabase(ctx),
		"redis":    h.checkRedis(ctx),
		"engine":   h.checkEngine(),
	}

	resp := AggregatedHealthResponse{
		Status:    determineOverallStatus(services),
		Services:  services,
		Timestamp: time.Now().Unix(),
	}
	if h.keepers != nil {
		resp.Keepers = h.keepers.Metrics()
	}
	if h.clients != nil {
		resp.WSClients = h.clients.ClientCount()
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, resp)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.db == nil {
		return ServiceStatus{Status: "down", Message: "not configured"}
	}
	start := time.Now()

	sqlDB, err := h.db.DB()
	if err != nil {
		return ServiceStatus{Status: "down", Message: "failed to get database instance"}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ServiceStatus{
			Status:  "down",
			Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			Message: err.Error(),
		}
	}

	return timed(start, 100)
}

// checkRedis reports an absent Redis as degraded: the API keeps serving with
// local rate limits and without caching.
func (h *HealthHandler) checkRedis(ctx context.Context) ServiceStatus {
	if !h.cache.IsAvailable() {
		return ServiceStatus{Status: "degraded", Message: "not configured"}
	}
	start := time.Now()

	if err := h.cache.Ping(ctx); err != nil {
		return ServiceStatus{
			Status:  "degraded",
			Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			Message: err.Error(),
		}
	}

	return timed(start, 50)
}

// checkEngine flags markets whose oracle price the engine would refuse.
func (h *HealthHandler) checkEngine() ServiceStatus {
	if h.engine == nil {
		return ServiceStatus{Status: "down", Message: "not running"}
	}
	var stale []string
	symbols := h.engine.Symbols()
	for _, symbol := range symbols {
		if _, err := h.engine.MarkPrice(symbol); err != nil {
			stale = append(stale, symbol)
		}
	}
	if len(stale) > 0 {
		return ServiceStatus{
			Status:  "degraded",
			Message: "unusable oracle price: " + strings.Join(stale, ","),
		}
	}
	return ServiceStatus{Status: "ok", Message: fmt.Sprintf("%d markets", len(symbols))}
}

func timed(start time.Time, degradedAfterMs int64) ServiceStatus {
	latency := time.Since(start).Milliseconds()
	status := "ok"
	if latency > degradedAfterMs {
		status = "degraded"
	}
	return ServiceStatus{
		Status:  status,
		Latency: fmt.Sprintf("%dms", latency),
	}
}

func determineOverallStatus(services map[string]ServiceStatus) string {
	// Without the database or the engine nothing can be committed
	if services["database"].Status == "down" || services["engine"].Status == "down" {
		return "unhealthy"
	}

	for _, s := range services {
		if s.Status != "ok" {
			return "degraded"
		}
	}
	return "healthy"
}
