package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/internal/core/services"
	"catalogsync/internal/infrastructure/eventchannel"
	"catalogsync/internal/infrastructure/gateway"
	"catalogsync/internal/infrastructure/monitoring"
	"catalogsync/internal/infrastructure/repositories"
	"catalogsync/internal/infrastructure/repositories/memory"
	"catalogsync/internal/infrastructure/tmdb"
	"catalogsync/pkg/config"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/tracing"

	"go.uber.org/zap"
)

const (
	scratchTTL        = 30 * time.Minute
	storeCheckTimeout = 2 * time.Second
)

// Config paths tried in order when --config is not given.
var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/catalogsync/config.yaml",
	"config.yaml",
}

// loadConfig reads the given file, or the first loadable default path.
// With nothing loadable it falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	var (
		cfg *config.Config
		err error
	)
	for _, p := range configPaths {
		cfg, err = config.Load(p)
		if err == nil {
			return cfg, nil
		}
	}
	return config.DefaultConfig(), nil
}

func newLogger(cfg *config.Config, level string) *zap.Logger {
	if level == "" {
		level = cfg.Logging.Level
	}
	return logger.NewWithFormat(level, cfg.Logging.Format)
}

// app holds the wired client. Every command builds one and closes it on exit.
type app struct {
	cfg *config.Config
	log *zap.SugaredLogger

	metrics     ports.MetricsCollector
	promHandler http.Handler
	tracer      *tracing.TracerProvider

	store         repositories.SessionStore
	notifications *services.NotificationQueue
	sessions      *services.SessionService
	gateway       *gateway.HTTPGateway
	auth          *services.AuthService

	items     *services.ItemStore
	films     *services.ViewState
	series    *services.ViewState
	reactions *services.ReactionService
	playlists *services.PlaylistService

	events   *eventchannel.StompChannel
	live     *services.LiveSync
	external *tmdb.Client
	health   *monitoring.HealthChecker

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		a.metrics = collector
		a.promHandler = collector.Handler()
	} else {
		a.metrics = monitoring.NopCollector{}
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp = &tracing.TracerProvider{}
	}
	a.tracer = tp

	a.store, err = repositories.NewSessionStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	a.notifications = services.NewNotificationQueue(cfg.Notifications.TTL, cfg.Notifications.ErrorTTL, a.metrics, log)
	a.sessions = services.NewSessionService(a.store, memory.NewScratchStore(scratchTTL), a.notifications, a.metrics, log)

	a.gateway, err = gateway.New(gateway.ConfigFrom(cfg), a.sessions, a.metrics, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create backend gateway: %w", err)
	}
	a.closers = append(a.closers, a.sessions.Subscribe(func(change services.SessionChange) {
		if change.Kind == services.SessionSignedOut || change.Kind == services.SessionExpired {
			a.gateway.ResetCookies()
		}
	}))

	if err := a.sessions.Restore(ctx); err != nil {
		log.Warnw("failed to restore session, starting signed out", "error", err)
	}
	a.auth = services.NewAuthService(a.gateway, a.sessions, a.notifications, log)

	a.items = services.NewItemStore()
	viewCfg := func(name string) services.ViewConfig {
		return services.ViewConfig{Name: name, ClampToTotalPages: cfg.Views.ClampToTotalPages}
	}
	a.films = services.NewViewState(viewCfg("films"), services.NewCatalogService(a.gateway), a.items, a.notifications, a.metrics, log)
	a.series = services.NewViewState(viewCfg("series"),
		services.NewListFetcher(a.gateway, services.SeriesPath, domain.KindSeries), a.items, a.notifications, a.metrics, log)
	a.reactions = services.NewReactionService(services.NewReactionClient(a.gateway), a.items, a.notifications,
		cfg.Reactions.RollbackOnFailure, a.metrics, log)
	a.playlists = services.NewPlaylistService(a.gateway, a.notifications, log)

	a.health = monitoring.NewHealthChecker()
	a.health.AddStoreCheck("session_store", a.store, storeCheckTimeout)

	if cfg.Events.Enabled {
		a.events, err = eventchannel.New(eventchannel.ConfigFrom(cfg), a.sessions, a.metrics, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create event channel: %w", err)
		}
		a.events.OnPermanentFailure(func(err error) {
			a.notifications.Push(domain.SeverityError, "Live updates are unavailable", "")
		})
		a.live = services.NewLiveSync(services.LiveSyncConfig{
			Topic:       cfg.Events.NewMovieTopic,
			AutoRefresh: cfg.Events.AutoRefreshViews,
		}, a.events, a.notifications, log)
		a.live.Track(a.films)
		a.live.Track(a.series)
		a.health.AddEventChannelCheck(a.events, func() bool {
			sess, _ := a.sessions.Current()
			return sess != nil
		})
	}

	if cfg.TMDB.Enabled {
		a.external, err = tmdb.NewClient(tmdb.ConfigFrom(cfg), a.metrics, log)
		if err != nil {
			log.Warnw("external catalog disabled", "error", err)
			a.external = nil
		}
	}

	return a, nil
}

// startLiveSync follows the session and starts right away when already signed in.
func (a *app) startLiveSync() error {
	if a.live == nil {
		return nil
	}
	a.closers = append(a.closers, a.live.BindSession(a.sessions))
	if sess, _ := a.sessions.Current(); sess != nil {
		return a.live.Start()
	}
	return nil
}

func (a *app) views() []*services.ViewState {
	return []*services.ViewState{a.films, a.series}
}

func (a *app) view(name string) (*services.ViewState, error) {
	for _, v := range a.views() {
		if v != nil && v.Name() == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown view %q", name)
}

func (a *app) close() {
	if a.live != nil {
		a.live.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warnw("failed to close event channel", "error", err)
		}
	}
	for _, v := range a.views() {
		if v != nil {
			v.Close()
		}
	}
	if a.notifications != nil {
		a.notifications.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("failed to close session store", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		a.log.Warnw("failed to flush traces", "error", err)
	}
}
