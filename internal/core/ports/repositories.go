package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is durable client storage for the session keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// ScratchStore holds disposable cross-navigation data such as watch positions.
// Nothing in it is a source of truth.
type ScratchStore interface {
	Put(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
	Clear()
}
