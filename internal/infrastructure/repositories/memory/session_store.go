package memory

import (
	"context"
	"sync"

	"catalogsync/internal/core/ports"
)

// SessionStore keeps session keys for the lifetime of the process.
type SessionStore struct {
	data map[string]string
	mu   sync.RWMutex
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string]string),
	}
}

func (s *SessionStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	if !exists {
		return "", ports.ErrKeyNotFound
	}
	return v, nil
}

func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return nil
}

func (s *SessionStore) Ping(ctx context.Context) error {
	return nil
}
