package services

import (
	"sync"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultNotificationTTL      = 5 * time.Second
	DefaultErrorNotificationTTL = 6 * time.Second
)

type NotificationListener func(event domain.NotificationEvent)

type queuedNotification struct {
	n     domain.Notification
	timer *time.Timer
}

var _ ports.Notifier = (*NotificationQueue)(nil)

// NotificationQueue is an ordered set of transient messages. Each entry owns its
// own expiry timer; removing one never touches the others.
type NotificationQueue struct {
	// emitMu keeps listener events in the same order as the mutations.
	emitMu sync.Mutex

	mu        sync.Mutex
	items     []*queuedNotification
	listeners map[uint64]NotificationListener
	nextID    uint64
	closed    bool

	ttl      time.Duration
	errorTTL time.Duration
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
}

// NewNotificationQueue creates a queue. Zero TTLs fall back to 5s and 6s (errors).
func NewNotificationQueue(ttl, errorTTL time.Duration, metrics ports.MetricsCollector, log *zap.SugaredLogger) *NotificationQueue {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	if errorTTL <= 0 {
		errorTTL = DefaultErrorNotificationTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationQueue{
		listeners: make(map[uint64]NotificationListener),
		ttl:       ttl,
		errorTTL:  errorTTL,
		metrics:   metrics,
		logger:    log,
	}
}

// Push appends a notification with the default TTL for its severity.
func (q *NotificationQueue) Push(severity domain.Severity, message, link string) domain.NotificationID {
	ttl := q.ttl
	if severity == domain.SeverityError {
		ttl = q.errorTTL
	}
	return q.PushTTL(severity, message, link, ttl)
}

// PushTTL appends a notification that removes itself after ttl.
// It returns "" once the queue is closed.
func (q *NotificationQueue) PushTTL(severity domain.Severity, message, link string, ttl time.Duration) domain.NotificationID {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	now := utils.Now()
	n := domain.Notification{
		ID:        domain.NotificationID(uuid.NewString()),
		Severity:  severity,
		Message:   utils.SanitizeString(message),
		Link:      link,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}
	entry := &queuedNotification{n: n}
	id := n.ID
	entry.timer = time.AfterFunc(ttl, func() { q.expire(id) })
	q.items = append(q.items, entry)
	size := len(q.items)
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.logger.Debugw("notification pushed", "id", n.ID, "severity", n.Severity, "ttl", ttl)
	q.record(size)
	emitNotification(listeners, domain.NotificationEvent{Kind: domain.NotificationAdded, Notification: n})
	return id
}

// Dismiss removes id now and cancels its timer. Unknown or already expired ids are a no-op.
func (q *NotificationQueue) Dismiss(id domain.NotificationID) bool {
	return q.remove(id, "dismissed")
}

func (q *NotificationQueue) expire(id domain.NotificationID) {
	q.remove(id, "expired")
}

func (q *NotificationQueue) remove(id domain.NotificationID, reason string) bool {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	q.mu.Lock()
	idx := -1
	for i, e := range q.items {
		if e.n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	entry := q.items[idx]
	entry.timer.Stop()
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	size := len(q.items)
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.logger.Debugw("notification removed", "id", id, "reason", reason)
	q.record(size)
	emitNotification(listeners, domain.NotificationEvent{Kind: domain.NotificationRemoved, Notification: entry.n})
	return true
}

// List returns the visible notifications, oldest first.
func (q *NotificationQueue) List() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Notification, len(q.items))
	for i, e := range q.items {
		out[i] = e.n
	}
	return out
}

func (q *NotificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Subscribe registers fn for added/removed events. fn must not call back into the queue.
func (q *NotificationQueue) Subscribe(fn NotificationListener) func() {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.listeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Close stops every pending timer and drops all notifications without emitting events.
func (q *NotificationQueue) Close() {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, e := range q.items {
		e.timer.Stop()
	}
	q.items = nil
	q.listeners = make(map[uint64]NotificationListener)
}

func (q *NotificationQueue) snapshotListeners() []NotificationListener {
	out := make([]NotificationListener, 0, len(q.listeners))
	for _, fn := range q.listeners {
		out = append(out, fn)
	}
	return out
}

func (q *NotificationQueue) record(size int) {
	if q.metrics != nil {
		q.metrics.RecordNotificationQueue(size)
	}
}

func emitNotification(listeners []NotificationListener, ev domain.NotificationEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}
