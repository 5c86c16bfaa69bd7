package http

import (
	"net/http"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	queue *services.NotificationQueue
}

func NewNotificationHandler(queue *services.NotificationQueue) *NotificationHandler {
	return &NotificationHandler{queue: queue}
}

func (h *NotificationHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/notifications")
	{
		api.GET("", h.List)
		api.DELETE("/:id", h.Dismiss)
	}
}

// List returns the visible notifications, oldest first.
func (h *NotificationHandler) List(c *gin.Context) {
	items := h.queue.List()
	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
	})
}

// Dismiss is idempotent: dismissing an expired or unknown id is not an error.
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	removed := h.queue.Dismiss(domain.NotificationID(c.Param("id")))
	c.JSON(http.StatusOK, gin.H{"dismissed": removed})
}
