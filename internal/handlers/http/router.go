package http

import (
	"net/http"

	"catalogsync/internal/core/ports"
	"catalogsync/internal/core/services"
	"catalogsync/internal/infrastructure/middleware"
	"catalogsync/internal/infrastructure/monitoring"
	"catalogsync/pkg/config"
	"catalogsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps lists what the status surface exposes. Nil members disable their routes.
type RouterDeps struct {
	Health        *monitoring.HealthChecker
	Metrics       http.Handler
	Notifications *services.NotificationQueue
	Views         []*services.ViewState
	DefaultView   string
	Reactions     *services.ReactionService
	Items         *services.ItemStore
	Playlists     *services.PlaylistService
	Auth          *services.AuthService
	Sessions      *services.SessionService
	External      ports.ExternalCatalog
}

// NewRouter builds the gin engine for the local status surface.
func NewRouter(cfg *config.Config, deps RouterDeps, log *zap.SugaredLogger) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthChecker()
	}
	NewStatusHandler(health, deps.Metrics).SetupRoutes(router)

	var guards []gin.HandlerFunc
	if deps.Sessions != nil {
		guards = append(guards, middleware.RequireSession(deps.Sessions))
	}

	if deps.Notifications != nil {
		NewNotificationHandler(deps.Notifications).SetupRoutes(router)
	}
	if len(deps.Views) > 0 {
		def := deps.DefaultView
		if def == "" {
			def = deps.Views[0].Name()
		}
		NewViewHandler(def, deps.Views...).SetupRoutes(router)
	}
	if deps.Reactions != nil {
		NewReactionHandler(deps.Reactions, deps.Items).SetupRoutes(router, guards...)
	}
	if deps.Playlists != nil {
		NewPlaylistHandler(deps.Playlists).SetupRoutes(router, guards...)
	}
	if deps.Auth != nil && deps.Sessions != nil {
		NewAuthHandler(deps.Auth, deps.Sessions).SetupRoutes(router)
	}
	if deps.External != nil {
		NewExternalHandler(deps.External).SetupRoutes(router)
	}

	return router
}
