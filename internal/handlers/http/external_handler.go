package http

import (
	"net/http"
	"strings"

	"catalogsync/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// ExternalHandler serves the read-only external catalog sections.
type ExternalHandler struct {
	catalog ports.ExternalCatalog
}

func NewExternalHandler(catalog ports.ExternalCatalog) *ExternalHandler {
	return &ExternalHandler{catalog: catalog}
}

func (h *ExternalHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/api/v1/external/sections", h.Sections)
}

// Sections never fails: an unavailable section is returned empty.
func (h *ExternalHandler) Sections(c *gin.Context) {
	var names []string
	for _, raw := range c.QueryArray("name") {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	sections := h.catalog.Sections(c.Request.Context(), names...)
	out := make(map[string][]itemResponse, len(sections))
	for name, items := range sections {
		out[name] = toItemResponses(items)
	}
	c.JSON(http.StatusOK, gin.H{"sections": out})
}
