package monitoring

import (
	"context"
	"errors"
	"time"

	"catalogsync/internal/core/ports"
)

// Pinger is satisfied by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddStoreCheck adds a session store health check
func (h *HealthChecker) AddStoreCheck(name string, store Pinger, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		if err := store.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddEventChannelCheck reports unhealthy while the event channel is expected to be
// up but is not. A nil expected means always expected.
func (h *HealthChecker) AddEventChannelCheck(ch ports.EventChannel, expected func() bool) {
	h.AddCheck("event_channel", func(ctx context.Context) (bool, error) {
		if expected != nil && !expected() {
			return true, nil
		}
		if !ch.Connected() {
			return false, errors.New("event channel disconnected")
		}
		return true, nil
	}, time.Second)
}
