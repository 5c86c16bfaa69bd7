package ports

import (
	"context"
	"time"

	"catalogsync/internal/core/domain"
)

// SessionProvider is the read side of the session manager used by transports.
type SessionProvider interface {
	// Current returns the session (nil when signed out) and its generation.
	Current() (*domain.Session, uint64)
	// Expire invalidates generation gen. Only the first call for a generation
	// has effect; it returns true for that call.
	Expire(gen uint64) bool
}

type Notifier interface {
	Push(severity domain.Severity, message, link string) domain.NotificationID
}

type PageFetcher interface {
	FetchPage(ctx context.Context, filter domain.FilterState, page int) (domain.Page, error)
}

// EventHandler receives the raw JSON body of one pushed message.
type EventHandler func(payload []byte)

type EventChannel interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func(), err error)
	Connected() bool
	Close() error
}

// StaleMarker is implemented by list views that can be told their data is outdated.
type StaleMarker interface {
	MarkStale()
	Refresh(ctx context.Context)
}

type ReactionAPI interface {
	SendReaction(ctx context.Context, key domain.ItemKey, kind domain.ReactionKind) (*domain.Counters, error)
}

type ExternalCatalog interface {
	Sections(ctx context.Context, names ...string) map[string][]domain.CatalogItem
}

// MetricsCollector receives client-side measurements. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordAuthExpired()
	RecordEventConnected(connected bool)
	RecordEventReconnect()
	RecordEventMessage(topic string)
	RecordViewFetch(view string, outcome string, duration time.Duration)
	RecordNotificationQueue(size int)
	RecordReaction(outcome string)
	RecordExternalCatalog(section string, ok bool)
}
