package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned once the policy gives up.
var ErrExhausted = errors.New("retry policy exhausted")

// Policy holds exponential backoff configuration
type Policy struct {
	InitialInterval time.Duration // Delay before the first retry
	MaxInterval     time.Duration // Cap for a single delay
	Multiplier      float64       // Growth factor between attempts (typically 2.0)
	Jitter          float64       // Randomization factor in [0, 1], 0.25 means +-25%
	MaxElapsedTime  time.Duration // Give up after this much total time, 0 disables
	MaxAttempts     int           // Give up after this many retries, 0 disables
}

// DefaultPolicy returns the policy used for event channel reconnects
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.25,
		MaxElapsedTime:  10 * time.Minute,
		MaxAttempts:     20,
	}
}

// NewBackOff builds a fresh backoff bound to ctx.
func (p Policy) NewBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = p.MaxElapsedTime
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return backoff.WithContext(b, ctx)
}

// Permanent marks err as non-retryable: Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a permanent error, ctx is cancelled or the
// policy is exhausted. notify (optional) observes each failure and the next delay.
func Do(ctx context.Context, p Policy, fn func() error, notify func(err error, wait time.Duration)) error {
	return DoWith(ctx, p.NewBackOff(ctx), fn, notify)
}

// DoWith is Do with a caller-owned backoff, so state survives across calls.
func DoWith(ctx context.Context, b backoff.BackOff, fn func() error, notify func(err error, wait time.Duration)) error {
	permanent := false
	op := func() error {
		err := fn()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry cancelled: %w", ctxErr)
	}

	if permanent {
		return fmt.Errorf("non-retryable error: %w", err)
	}

	return fmt.Errorf("%w: %w", ErrExhausted, err)
}
