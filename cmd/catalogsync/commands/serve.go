package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httphandlers "catalogsync/internal/handlers/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewServeCommand runs the client as a daemon with the local status surface.
func NewServeCommand() *cobra.Command {
	var (
		configFile string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync client and its status surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			zapLogger := newLogger(cfg, logLevel)
			defer zapLogger.Sync()
			log := zapLogger.Sugar()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.startLiveSync(); err != nil {
				log.Warnw("live sync not started", "error", err)
			}
			for _, v := range a.views() {
				v.Refresh(ctx)
			}

			if !cfg.Status.Enabled {
				log.Info("status surface disabled, running until signalled")
				<-ctx.Done()
				log.Info("catalogsync stopped")
				return nil
			}

			if cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			deps := httphandlers.RouterDeps{
				Health:        a.health,
				Metrics:       a.promHandler,
				Notifications: a.notifications,
				Views:         a.views(),
				DefaultView:   a.films.Name(),
				Reactions:     a.reactions,
				Items:         a.items,
				Playlists:     a.playlists,
				Auth:          a.auth,
				Sessions:      a.sessions,
			}
			if a.external != nil {
				deps.External = a.external
			}

			srv := &http.Server{
				Addr:         cfg.Status.Address,
				Handler:      httphandlers.NewRouter(cfg, deps, log),
				ReadTimeout:  cfg.Status.ReadTimeout,
				WriteTimeout: cfg.Status.WriteTimeout,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Infof("Starting catalogsync status server on %s", cfg.Status.Address)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case err := <-serverErr:
				log.Errorw("Status server failed", "error", err)
				return err
			case <-ctx.Done():
				log.Info("Received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorw("Error during server shutdown", "error", err)
				if closeErr := srv.Close(); closeErr != nil {
					log.Errorw("Error force closing server", "error", closeErr)
				}
			} else {
				log.Info("Server shutdown gracefully")
			}

			log.Info("catalogsync stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")

	return cmd
}
