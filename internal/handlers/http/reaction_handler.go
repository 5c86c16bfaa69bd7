package http

import (
	"net/http"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"
	apperrors "catalogsync/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ReactionHandler struct {
	reactions *services.ReactionService
	items     *services.ItemStore
}

func NewReactionHandler(reactions *services.ReactionService, items *services.ItemStore) *ReactionHandler {
	return &ReactionHandler{
		reactions: reactions,
		items:     items,
	}
}

func (h *ReactionHandler) SetupRoutes(router gin.IRouter, guards ...gin.HandlerFunc) {
	api := router.Group("/api/v1/items/:origin/:id")
	{
		api.GET("/reactions", h.GetReaction)
		api.POST("/reactions", append(guards, h.React)...)
	}
}

type reactRequest struct {
	Type string `json:"type" binding:"required"`
}

func itemKey(c *gin.Context) (domain.ItemKey, bool) {
	key := domain.ItemKey{Origin: domain.Origin(c.Param("origin")), ID: c.Param("id")}
	if !key.Valid() {
		c.Error(apperrors.NewInvalidInputError("invalid item key"))
		return domain.ItemKey{}, false
	}
	return key, true
}

func (h *ReactionHandler) GetReaction(c *gin.Context) {
	key, ok := itemKey(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.response(key, h.reactions.State(key)))
}

// React toggles the reaction. The answer carries the optimistic state; the backend
// confirmation arrives later through notifications and the item store.
func (h *ReactionHandler) React(c *gin.Context) {
	key, ok := itemKey(c)
	if !ok {
		return
	}

	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	kind, err := domain.ParseReactionKind(req.Type)
	if err != nil || kind == domain.ReactionNone {
		c.Error(apperrors.NewInvalidInputError("type must be LIKE or DISLIKE"))
		return
	}
	if key.Origin == domain.OriginExternal {
		c.Error(apperrors.NewInvalidInputError("reactions are only available for catalog titles"))
		return
	}

	state := h.reactions.React(c.Request.Context(), key, kind)
	c.JSON(http.StatusAccepted, h.response(key, state))
}

func (h *ReactionHandler) response(key domain.ItemKey, state domain.ReactionKind) gin.H {
	body := gin.H{
		"item":     key,
		"reaction": state,
	}
	if h.items != nil {
		if item, _, ok := h.items.Get(key); ok {
			body["counters"] = item.Counters
		}
	}
	return body
}
