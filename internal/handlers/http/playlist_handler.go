package http

import (
	"errors"
	"net/http"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"
	apperrors "catalogsync/pkg/errors"

	"github.com/gin-gonic/gin"
)

type PlaylistHandler struct {
	playlists *services.PlaylistService
}

func NewPlaylistHandler(playlists *services.PlaylistService) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists}
}

func (h *PlaylistHandler) SetupRoutes(router gin.IRouter, guards ...gin.HandlerFunc) {
	api := router.Group("/api/v1/playlists", guards...)
	{
		api.GET("", h.List)
		api.POST("", h.Create)
		api.GET("/:id", h.Get)
		api.DELETE("/:id", h.Delete)
		api.POST("/:id/items", h.AddItem)
		api.DELETE("/:id/items/:origin/:itemId", h.RemoveItem)
	}
}

// List reloads from the backend unless ?cached=true.
func (h *PlaylistHandler) List(c *gin.Context) {
	if c.Query("cached") == "true" {
		c.JSON(http.StatusOK, gin.H{"playlists": h.playlists.Cached()})
		return
	}

	playlists, err := h.playlists.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (h *PlaylistHandler) Get(c *gin.Context) {
	p, err := h.playlists.Get(domain.PlaylistID(c.Param("id")))
	if err != nil {
		c.Error(playlistError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlist": p})
}

type createPlaylistRequest struct {
	Name string `json:"name"`
}

func (h *PlaylistHandler) Create(c *gin.Context) {
	var req createPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	p, err := h.playlists.Create(c.Request.Context(), req.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"playlist": p})
}

func (h *PlaylistHandler) Delete(c *gin.Context) {
	if err := h.playlists.Delete(c.Request.Context(), domain.PlaylistID(c.Param("id"))); err != nil {
		c.Error(playlistError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type addItemRequest struct {
	Item domain.ItemKey `json:"item"`
}

func (h *PlaylistHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Item.Valid() {
		c.Error(apperrors.NewInvalidInputError("item must look like origin:id"))
		return
	}

	id := domain.PlaylistID(c.Param("id"))
	if err := h.playlists.AddItem(c.Request.Context(), id, req.Item); err != nil {
		c.Error(playlistError(err))
		return
	}
	h.respondPlaylist(c, id, http.StatusOK)
}

func (h *PlaylistHandler) RemoveItem(c *gin.Context) {
	key := domain.ItemKey{Origin: domain.Origin(c.Param("origin")), ID: c.Param("itemId")}
	if !key.Valid() {
		c.Error(apperrors.NewInvalidInputError("invalid item key"))
		return
	}

	id := domain.PlaylistID(c.Param("id"))
	if err := h.playlists.RemoveItem(c.Request.Context(), id, key); err != nil {
		c.Error(playlistError(err))
		return
	}
	h.respondPlaylist(c, id, http.StatusOK)
}

func (h *PlaylistHandler) respondPlaylist(c *gin.Context, id domain.PlaylistID, status int) {
	p, err := h.playlists.Get(id)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(status, gin.H{"playlist": p})
}

func playlistError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPlaylistNotFound):
		return apperrors.NewNotFoundError("playlist")
	case errors.Is(err, domain.ErrItemNotFound):
		return apperrors.NewNotFoundError("playlist item")
	}
	return err
}
