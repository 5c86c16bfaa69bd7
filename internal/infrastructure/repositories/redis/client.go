package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// Options selects the Redis instance holding the persisted session.
type Options struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces every session key, e.g. "catalogsync:session:".
	Prefix string
}

// Connect dials Redis, verifies it answers and brings the session key layout up to date.
func Connect(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  connectTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Address, err)
	}
	if err := Migrate(ctx, client, opts.Prefix, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to migrate session keys: %w", err)
	}

	if logger != nil {
		logger.Infow("session store connected to Redis", "address", opts.Address, "db", opts.DB, "prefix", opts.Prefix)
	}
	return client, nil
}
