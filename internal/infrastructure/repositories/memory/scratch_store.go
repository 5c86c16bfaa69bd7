package memory

import (
	"time"

	"catalogsync/pkg/cache"
)

// ScratchStore holds disposable values such as watch positions. Entries expire on
// their own and the whole store is dropped on sign-out.
type ScratchStore struct {
	cache *cache.Cache
}

// NewScratchStore creates a store whose entries live for ttl unless Put overrides it.
func NewScratchStore(ttl time.Duration) *ScratchStore {
	return &ScratchStore{cache: cache.NewCache(ttl)}
}

func (s *ScratchStore) Put(key string, value interface{}, ttl time.Duration) {
	if ttl > 0 {
		s.cache.SetWithTTL(key, value, ttl)
		return
	}
	s.cache.Set(key, value)
}

func (s *ScratchStore) Get(key string) (interface{}, bool) {
	return s.cache.Get(key)
}

func (s *ScratchStore) Clear() {
	s.cache.Clear()
}

func (s *ScratchStore) Len() int {
	return s.cache.Size()
}
