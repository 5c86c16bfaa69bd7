package http

import (
	"context"
	"net/http"
	"time"

	"catalogsync/internal/infrastructure/monitoring"
	"catalogsync/pkg/utils"

	"github.com/gin-gonic/gin"
)

type StatusHandler struct {
	health    *monitoring.HealthChecker
	metrics   http.Handler
	startTime time.Time
}

// NewStatusHandler creates the probe endpoints. metrics may be nil to disable /metrics.
func NewStatusHandler(health *monitoring.HealthChecker, metrics http.Handler) *StatusHandler {
	return &StatusHandler{
		health:    health,
		metrics:   metrics,
		startTime: time.Now(),
	}
}

func (h *StatusHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    utils.FormatDuration(time.Since(h.startTime)),
	})
}

func (h *StatusHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := h.health.CheckAll(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
