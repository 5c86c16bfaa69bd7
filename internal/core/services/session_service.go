package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/utils"

	"go.uber.org/zap"
)

// Storage keys. Both are written and cleared together.
const (
	KeyToken    = "token"
	KeyAuthUser = "auth_user"
)

const sessionExpiredMessage = "Your session has expired, please log in again"

type SessionChangeKind string

const (
	SessionSignedIn  SessionChangeKind = "signed_in"
	SessionSignedOut SessionChangeKind = "signed_out"
	SessionExpired   SessionChangeKind = "expired"
)

type SessionChange struct {
	Kind       SessionChangeKind
	Session    *domain.Session // nil unless Kind is SessionSignedIn
	Generation uint64
}

type SessionListener func(change SessionChange)

var _ ports.SessionProvider = (*SessionService)(nil)

// SessionService is the only place the session is mutated.
// Every sign-in, sign-out and expiry bumps the generation.
type SessionService struct {
	mu         sync.RWMutex
	session    *domain.Session
	generation uint64

	// expireMu serializes Expire so that losers of a race return only after
	// the winner has finished signalling.
	expireMu sync.Mutex
	// storageMu keeps a state change and its store writes together, so a sign-in
	// cannot land between an expiry clearing the session and deleting its keys.
	storageMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[uint64]SessionListener
	nextID      uint64

	store    ports.KeyValueStore
	scratch  ports.ScratchStore
	notifier ports.Notifier
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewSessionService creates the session manager. scratch, notifier and metrics may be nil.
func NewSessionService(
	store ports.KeyValueStore,
	scratch ports.ScratchStore,
	notifier ports.Notifier,
	metrics ports.MetricsCollector,
	log *zap.SugaredLogger,
) *SessionService {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionService{
		listeners: make(map[uint64]SessionListener),
		store:     store,
		scratch:   scratch,
		notifier:  notifier,
		metrics:   metrics,
		logger:    log,
		now:       time.Now,
	}
}

// Current returns the session (nil when signed out) and its generation.
func (s *SessionService) Current() (*domain.Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.generation
}

// Token returns the bearer token, or "" when signed out.
func (s *SessionService) Token() string {
	sess, _ := s.Current()
	if sess == nil {
		return ""
	}
	return sess.Token
}

// Subscribe registers a listener for session changes. Listeners run synchronously
// on the goroutine that caused the change.
func (s *SessionService) Subscribe(fn SessionListener) func() {
	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Restore loads a previously persisted session. A missing or expired token leaves
// the manager signed out and clears any leftovers.
func (s *SessionService) Restore(ctx context.Context) error {
	token, err := s.store.Get(ctx, KeyToken)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session token: %w", err)
	}

	var user domain.User
	raw, err := s.store.Get(ctx, KeyAuthUser)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			s.logger.Warnw("discarding unreadable auth user", "error", err)
		}
	case !errors.Is(err, ports.ErrKeyNotFound):
		return fmt.Errorf("failed to load auth user: %w", err)
	}

	sess := newSession(token, user)
	s.storageMu.Lock()
	if sess.Expired(s.now()) {
		defer s.storageMu.Unlock()
		s.logger.Infow("stored session expired, clearing", "user_id", user.ID)
		return s.clearStorage(ctx)
	}

	s.mu.Lock()
	s.session = sess
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.storageMu.Unlock()

	s.logger.Infow("session restored", "user_id", user.ID, "username", user.Username)
	s.emit(SessionChange{Kind: SessionSignedIn, Session: sess, Generation: gen})
	return nil
}

// SignIn replaces the current session and persists it.
func (s *SessionService) SignIn(ctx context.Context, token string, user domain.User) (*domain.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("failed to sign in: %w", domain.ErrNoSession)
	}
	sess := newSession(token, user)

	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth user: %w", err)
	}

	s.storageMu.Lock()
	if err := s.store.Set(ctx, KeyToken, token); err != nil {
		s.storageMu.Unlock()
		return nil, fmt.Errorf("failed to persist session token: %w", err)
	}
	if err := s.store.Set(ctx, KeyAuthUser, string(userJSON)); err != nil {
		_ = s.store.Delete(ctx, KeyToken)
		s.storageMu.Unlock()
		return nil, fmt.Errorf("failed to persist auth user: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.storageMu.Unlock()

	s.logger.Infow("signed in", "user_id", sess.User.ID, "role", sess.User.Role, "token", utils.MaskSensitive(token, 6))
	s.emit(SessionChange{Kind: SessionSignedIn, Session: sess, Generation: gen})
	return sess, nil
}

// SignOut destroys the session. Signing out while signed out is a no-op.
func (s *SessionService) SignOut(ctx context.Context) error {
	s.storageMu.Lock()
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		s.storageMu.Unlock()
		return nil
	}
	s.session = nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	err := s.clearStorage(ctx)
	s.storageMu.Unlock()
	s.logger.Infow("signed out")
	s.emit(SessionChange{Kind: SessionSignedOut, Generation: gen})
	return err
}

// Expire invalidates the session of generation gen after a 401. Only the first
// call for a live generation has effect: it clears the session, pushes one
// "please log in again" notification and signals listeners before returning true.
// Concurrent callers block until that signalling is done and then return false.
func (s *SessionService) Expire(gen uint64) bool {
	s.expireMu.Lock()
	defer s.expireMu.Unlock()

	s.storageMu.Lock()
	s.mu.Lock()
	if s.session == nil || s.generation != gen {
		s.mu.Unlock()
		s.storageMu.Unlock()
		return false
	}
	expired := s.session
	s.session = nil
	s.generation++
	next := s.generation
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.clearStorage(ctx); err != nil {
		s.logger.Warnw("failed to clear expired session", "error", err)
	}
	s.storageMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordAuthExpired()
	}
	s.logger.Warnw("session expired", "user_id", expired.User.ID, "generation", gen)

	if s.notifier != nil {
		s.notifier.Push(domain.SeverityError, sessionExpiredMessage, "/login")
	}
	s.emit(SessionChange{Kind: SessionExpired, Generation: next})
	return true
}

func (s *SessionService) clearStorage(ctx context.Context) error {
	if s.scratch != nil {
		s.scratch.Clear()
	}
	if err := s.store.Delete(ctx, KeyToken, KeyAuthUser); err != nil {
		return fmt.Errorf("failed to clear session storage: %w", err)
	}
	return nil
}

func (s *SessionService) emit(change SessionChange) {
	s.listenersMu.Lock()
	listeners := make([]SessionListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// newSession fills role and expiry from the token claims when the user record lacks them.
func newSession(token string, user domain.User) *domain.Session {
	sess := &domain.Session{Token: token, User: user}

	claims, err := DecodeClaims(token)
	if err != nil {
		if sess.User.Role == "" {
			sess.User.Role = domain.RoleUser
		}
		return sess
	}
	if sess.User.Role == "" && claims.Role != "" {
		sess.User.Role = domain.UserRole(claims.Role)
	}
	if sess.User.Role == "" {
		sess.User.Role = domain.RoleUser
	}
	if sess.User.Username == "" {
		sess.User.Username = claims.Subject
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess
}
