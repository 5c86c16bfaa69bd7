package repositories

import (
	"context"

	"catalogsync/internal/core/ports"
	"catalogsync/internal/infrastructure/repositories/file"
	"catalogsync/internal/infrastructure/repositories/memory"
	redisrepo "catalogsync/internal/infrastructure/repositories/redis"
	"catalogsync/pkg/config"
	"catalogsync/pkg/logger"

	"go.uber.org/zap"
)

// SessionStore is a KeyValueStore that can report its own health.
type SessionStore interface {
	ports.KeyValueStore
	Ping(ctx context.Context) error
}

// NewSessionStore creates the store selected by session.store. An unreachable
// Redis falls back to memory so the client still starts signed out.
func NewSessionStore(cfg *config.Config, log *zap.SugaredLogger) (SessionStore, error) {
	if log == nil {
		log = logger.Nop()
	}

	switch cfg.Session.Store {
	case "file":
		store, err := file.NewSessionStore(cfg.Session.FilePath)
		if err != nil {
			return nil, err
		}
		log.Infow("using file session store", "path", cfg.Session.FilePath)
		return store, nil

	case "redis":
		r := cfg.Session.Redis
		client, err := redisrepo.Connect(context.Background(), redisrepo.Options{
			Address:  r.Address,
			Password: r.Password,
			DB:       r.DB,
			PoolSize: r.PoolSize,
			Prefix:   r.Prefix,
		}, log)
		if err != nil {
			log.Warnw("failed to connect to Redis, falling back to memory session store",
				"error", err,
			)
			return memory.NewSessionStore(), nil
		}
		log.Info("using Redis session store")
		return redisrepo.NewSessionStore(client, r.Prefix), nil
	}

	log.Info("using memory session store")
	return memory.NewSessionStore(), nil
}
