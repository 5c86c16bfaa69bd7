package http

import (
	"net/http"

	"catalogsync/internal/core/services"
	"catalogsync/pkg/errors"
	"catalogsync/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler drives sign-in state of the local client.
type AuthHandler struct {
	authService *services.AuthService
	sessions    *services.SessionService
}

func NewAuthHandler(authService *services.AuthService, sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/session")
	{
		api.GET("", h.Current)
		api.POST("/login", h.Login)
		api.POST("/register", h.Register)
		api.DELETE("", h.Logout)
	}
}

func (h *AuthHandler) Current(c *gin.Context) {
	sess, gen := h.sessions.Current()
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"signedIn": false})
		return
	}

	body := gin.H{
		"signedIn":   true,
		"user":       sess.User,
		"admin":      sess.User.IsAdmin(),
		"generation": gen,
	}
	if !sess.ExpiresAt.IsZero() {
		body["expiresAt"] = sess.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var form validation.LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	sess, err := h.authService.Login(c.Request.Context(), form)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signedIn": true, "user": sess.User})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var form validation.RegisterForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	user, err := h.authService.Register(c.Request.Context(), form)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to sign out", http.StatusInternalServerError))
		return
	}
	c.Status(http.StatusNoContent)
}
