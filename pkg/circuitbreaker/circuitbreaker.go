package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed   // Normal operation, requests pass through
	StateOpen     = gobreaker.StateOpen     // Circuit is open, requests fail immediately
	StateHalfOpen = gobreaker.StateHalfOpen // Testing if service recovered, limited requests allowed
)

// Config holds circuit breaker configuration
type Config struct {
	Name                string
	FailureThreshold    int           // Consecutive failures before opening circuit
	Timeout             time.Duration // Time to wait before transitioning from open to half-open
	MaxRequestsHalfOpen int           // Max requests allowed in half-open state
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		Name:                "default",
		FailureThreshold:    5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// Stats is a point-in-time view of the breaker counters.
type Stats struct {
	State                State
	Requests             uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
	TotalFailures        uint32
}

// CircuitBreaker guards calls to a flaky upstream.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a new circuit breaker. onStateChange may be nil.
// Context cancellation is not counted as an upstream failure.
func New(config Config, onStateChange func(name string, from, to State)) *CircuitBreaker {
	threshold := uint32(config.FailureThreshold)
	if threshold == 0 {
		threshold = 1
	}
	maxReq := uint32(config.MaxRequestsHalfOpen)
	if maxReq == 0 {
		maxReq = 1
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: maxReq,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: onStateChange,
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cb.Name())
	}
	return err
}

// GetState returns the current state
func (b *CircuitBreaker) GetState() State {
	return b.cb.State()
}

// GetStats returns the current counters
func (b *CircuitBreaker) GetStats() Stats {
	c := b.cb.Counts()
	return Stats{
		State:                b.cb.State(),
		Requests:             c.Requests,
		ConsecutiveFailures:  c.ConsecutiveFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		TotalFailures:        c.TotalFailures,
	}
}
