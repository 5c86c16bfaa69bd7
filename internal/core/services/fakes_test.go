package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	deletes int
	// onDelete, when set, runs before a delete is applied.
	onDelete func()
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ports.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	if s.onDelete != nil {
		s.onDelete()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type fakeScratch struct {
	mu      sync.Mutex
	data    map[string]interface{}
	cleared int
}

func (s *fakeScratch) Put(key string, value interface{}, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]interface{})
	}
	s.data[key] = value
}

func (s *fakeScratch) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *fakeScratch) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	s.data = nil
}

type pushed struct {
	Severity domain.Severity
	Message  string
	Link     string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []pushed
}

func (n *recordingNotifier) Push(sev domain.Severity, msg, link string) domain.NotificationID {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, pushed{Severity: sev, Message: msg, Link: link})
	return domain.NotificationID(fmt.Sprintf("n-%d", len(n.items)))
}

func (n *recordingNotifier) all() []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushed(nil), n.items...)
}

func (n *recordingNotifier) bySeverity(sev domain.Severity) []pushed {
	var out []pushed
	for _, p := range n.all() {
		if p.Severity == sev {
			out = append(out, p)
		}
	}
	return out
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []ports.Request
	handle   func(req ports.Request) (*ports.Envelope, error)
}

func (g *fakeGateway) Call(_ context.Context, req ports.Request) (*ports.Envelope, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	h := g.handle
	g.mu.Unlock()
	if h == nil {
		return &ports.Envelope{Code: 200}, nil
	}
	return h(req)
}

func (g *fakeGateway) calls() []ports.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.Request(nil), g.requests...)
}

// envelope builds a success envelope around results.
func envelope(t *testing.T, results interface{}) *ports.Envelope {
	t.Helper()
	raw, err := json.Marshal(results)
	if err != nil {
		t.Fatalf("Failed to marshal results: %v", err)
	}
	return &ports.Envelope{Code: 200, Message: "OK", Results: raw}
}

// signedToken issues an HS256 token the client can decode without verification.
func signedToken(t *testing.T, subject, role string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: "42",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

type fakeEventChannel struct {
	mu       sync.Mutex
	handlers map[string]map[int]ports.EventHandler
	next     int
	subCount int
}

func newFakeEventChannel() *fakeEventChannel {
	return &fakeEventChannel{handlers: make(map[string]map[int]ports.EventHandler)}
}

func (c *fakeEventChannel) Subscribe(topic string, h ports.EventHandler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[topic] == nil {
		c.handlers[topic] = make(map[int]ports.EventHandler)
	}
	c.next++
	id := c.next
	c.handlers[topic][id] = h
	c.subCount++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[topic], id)
	}, nil
}

func (c *fakeEventChannel) Connected() bool { return true }

func (c *fakeEventChannel) Close() error { return nil }

func (c *fakeEventChannel) active(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[topic])
}

func (c *fakeEventChannel) publish(topic string, payload []byte) {
	c.mu.Lock()
	hs := make([]ports.EventHandler, 0, len(c.handlers[topic]))
	for _, h := range c.handlers[topic] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

type staleCounter struct {
	mu        sync.Mutex
	marked    int
	refreshed int
}

func (s *staleCounter) MarkStale() {
	s.mu.Lock()
	s.marked++
	s.mu.Unlock()
}

func (s *staleCounter) Refresh(context.Context) {
	s.mu.Lock()
	s.refreshed++
	s.mu.Unlock()
}

func (s *staleCounter) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked, s.refreshed
}
