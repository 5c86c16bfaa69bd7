package http

import (
	"net/http"
	"sort"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ViewHandler exposes the list views. Changes return 202 with the snapshot taken right
// after the change; the fetch completes in the background.
type ViewHandler struct {
	views       map[string]*services.ViewState
	defaultView string
}

func NewViewHandler(defaultView string, views ...*services.ViewState) *ViewHandler {
	h := &ViewHandler{
		views:       make(map[string]*services.ViewState, len(views)),
		defaultView: defaultView,
	}
	for _, v := range views {
		h.views[v.Name()] = v
	}
	return h
}

func (h *ViewHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/views", h.ListViews)
		api.GET("/view", h.GetView)
		api.PUT("/view/filter", h.SetFilter)
		api.PUT("/view/page", h.SetPage)
		api.POST("/view/refresh", h.Refresh)
	}
}

func (h *ViewHandler) view(c *gin.Context) (*services.ViewState, bool) {
	name := c.DefaultQuery("name", h.defaultView)
	v, ok := h.views[name]
	if !ok {
		c.Error(apperrors.NewNotFoundError("view " + name))
		return nil, false
	}
	return v, true
}

func (h *ViewHandler) ListViews(c *gin.Context) {
	names := make([]string, 0, len(h.views))
	for name := range h.views {
		names = append(names, name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"views": names, "default": h.defaultView})
}

func (h *ViewHandler) GetView(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toViewResponse(v.Current()))
}

func (h *ViewHandler) SetFilter(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}

	var filter domain.FilterState
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid filter"))
		return
	}

	changed := v.SetFilter(c.Request.Context(), filter)
	c.JSON(http.StatusAccepted, gin.H{
		"changed": changed,
		"view":    toViewResponse(v.Current()),
	})
}

type setPageRequest struct {
	Page int `json:"page" binding:"required"`
}

func (h *ViewHandler) SetPage(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}

	var req setPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidatePage(req.Page); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	changed := v.SetPage(c.Request.Context(), req.Page)
	c.JSON(http.StatusAccepted, gin.H{
		"changed": changed,
		"view":    toViewResponse(v.Current()),
	})
}

func (h *ViewHandler) Refresh(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	v.Refresh(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"view": toViewResponse(v.Current())})
}
