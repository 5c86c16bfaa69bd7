package cache

import "sync"

// Listener observes the latest value of one key.
type Listener[V any] func(value V)

type storeEntry[V any] struct {
	value   V
	present bool
	version uint64
	refs    int
	subs    map[uint64]Listener[V]
}

// ItemStore is a keyed store shared by every view that displays the same item.
// Entries live while at least one holder references them; a patch applied through
// Update is delivered to every subscriber of that key.
type ItemStore[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*storeEntry[V]
	nextSub uint64
}

// NewItemStore creates an empty store
func NewItemStore[K comparable, V any]() *ItemStore[K, V] {
	return &ItemStore[K, V]{
		entries: make(map[K]*storeEntry[V]),
	}
}

func (s *ItemStore[K, V]) entry(key K) *storeEntry[V] {
	e, ok := s.entries[key]
	if !ok {
		e = &storeEntry[V]{subs: make(map[uint64]Listener[V])}
		s.entries[key] = e
	}
	return e
}

// Acquire takes a reference on key.
func (s *ItemStore[K, V]) Acquire(key K) {
	s.mu.Lock()
	s.entry(key).refs++
	s.mu.Unlock()
}

// Release drops a reference on key. The entry is evicted when nothing holds it.
func (s *ItemStore[K, V]) Release(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 {
		delete(s.entries, key)
	}
}

// Upsert stores value under key (replacing any previous value) and returns the new version.
func (s *ItemStore[K, V]) Upsert(key K, value V) uint64 {
	s.mu.Lock()
	e := s.entry(key)
	e.value = value
	e.present = true
	e.version++
	version := e.version
	subs := snapshotListeners(e)
	s.mu.Unlock()

	notify(subs, value)
	return version
}

// Get returns the current value and version of key.
func (s *ItemStore[K, V]) Get(key K) (V, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.present {
		var zero V
		return zero, 0, false
	}
	return e.value, e.version, true
}

// Update atomically applies fn to the current value of key. Missing keys are left alone.
func (s *ItemStore[K, V]) Update(key K, fn func(V) V) (V, uint64, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.present {
		s.mu.Unlock()
		var zero V
		return zero, 0, false
	}
	e.value = fn(e.value)
	e.version++
	value, version := e.value, e.version
	subs := snapshotListeners(e)
	s.mu.Unlock()

	notify(subs, value)
	return value, version, true
}

// Subscribe registers fn for changes to key and holds a reference until the
// returned function is called. The returned function is safe to call more than once.
func (s *ItemStore[K, V]) Subscribe(key K, fn Listener[V]) func() {
	s.mu.Lock()
	e := s.entry(key)
	e.refs++
	s.nextSub++
	id := s.nextSub
	e.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.entries[key]; !ok || cur != e {
				return
			}
			delete(e.subs, id)
			if e.refs > 0 {
				e.refs--
			}
			if e.refs == 0 {
				delete(s.entries, key)
			}
		})
	}
}

// Refs returns the number of holders of key.
func (s *ItemStore[K, V]) Refs(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live entries
func (s *ItemStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func snapshotListeners[V any](e *storeEntry[V]) []Listener[V] {
	if len(e.subs) == 0 {
		return nil
	}
	out := make([]Listener[V], 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func notify[V any](subs []Listener[V], value V) {
	for _, fn := range subs {
		fn(value)
	}
}
