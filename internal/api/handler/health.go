package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports reachability of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports job store connectivity and queue backend
// reachability for external monitoring.
type HealthHandler struct {
	store Pinger
	queue Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store, queue Pinger) *HealthHandler {
	return &HealthHandler{store: store, queue: queue}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = "unreachable: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if err := h.queue.Ping(ctx); err != nil {
		checks["queue"] = "unreachable: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["queue"] = "ok"
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}
	c.JSON(status, gin.H{"status": result, "checks": checks})
}
