package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/utils"

	"go.uber.org/zap"
)

type LiveSyncConfig struct {
	Topic string
	// AutoRefresh refetches marked views instead of only flagging them stale.
	AutoRefresh bool
}

// LiveSync turns pushed new-movie events into info notifications and stale views.
// It follows the session: subscribed while signed in, torn down otherwise.
type LiveSync struct {
	mu          sync.Mutex
	unsubscribe func()
	views       []ports.StaleMarker

	cfg      LiveSyncConfig
	channel  ports.EventChannel
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func NewLiveSync(cfg LiveSyncConfig, channel ports.EventChannel, notifier ports.Notifier, log *zap.SugaredLogger) *LiveSync {
	if cfg.Topic == "" {
		cfg.Topic = domain.TopicNewMovie
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LiveSync{
		cfg:      cfg,
		channel:  channel,
		notifier: notifier,
		logger:   log,
	}
}

// Track registers a view to be marked stale when a new title is announced.
func (l *LiveSync) Track(v ports.StaleMarker) {
	l.mu.Lock()
	l.views = append(l.views, v)
	l.mu.Unlock()
}

// Start subscribes to the topic. Calling Start twice is a no-op.
func (l *LiveSync) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		return nil
	}
	unsub, err := l.channel.Subscribe(l.cfg.Topic, l.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.cfg.Topic, err)
	}
	l.unsubscribe = unsub
	l.logger.Infow("live sync started", "topic", l.cfg.Topic)
	return nil
}

// Stop unsubscribes. Once it returns no further event is handled.
func (l *LiveSync) Stop() {
	l.mu.Lock()
	unsub := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
		l.logger.Infow("live sync stopped", "topic", l.cfg.Topic)
	}
}

// BindSession starts live sync on sign-in and stops it on sign-out or expiry.
func (l *LiveSync) BindSession(sessions *SessionService) func() {
	return sessions.Subscribe(func(change SessionChange) {
		switch change.Kind {
		case SessionSignedIn:
			if err := l.Start(); err != nil {
				l.logger.Warnw("failed to start live sync", "error", err)
			}
		case SessionSignedOut, SessionExpired:
			l.Stop()
		}
	})
}

// handle runs on the event channel's delivery goroutine and must not block on I/O.
func (l *LiveSync) handle(payload []byte) {
	var ev domain.NewMovieEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.Warnw("ignoring malformed new-movie event", "error", err, "payload", utils.TruncateString(string(payload), 200))
		return
	}

	title := utils.SanitizeString(ev.Title)
	msg := "A new title is available"
	if title != "" {
		msg = fmt.Sprintf("New on the catalog: %s", title)
	}
	if l.notifier != nil {
		l.notifier.Push(domain.SeverityInfo, msg, ev.ActionURL)
	}

	l.mu.Lock()
	views := append([]ports.StaleMarker(nil), l.views...)
	l.mu.Unlock()

	for _, v := range views {
		v.MarkStale()
		if l.cfg.AutoRefresh {
			v.Refresh(context.Background())
		}
	}
	l.logger.Debugw("new-movie event handled", "title", title, "views", len(views))
}
