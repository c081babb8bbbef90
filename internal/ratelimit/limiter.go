package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval keeps a single pipeline at roughly 2 requests/second,
// which stays under free-tier RPC quotas.
const DefaultInterval = 500 * time.Millisecond

// ErrCannotReserve is returned when the underlying limiter refuses a reservation.
var ErrCannotReserve = errors.New("rate: cannot reserve token")

// Limiter enforces a minimum interval between dispatches.
// The first dispatch is never delayed.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	onWait   func(time.Duration)
}

// NewInterval creates a limiter that allows one dispatch per interval with burst 1.
// A non-positive interval disables limiting.
func NewInterval(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// OnWait registers a callback invoked with the delay whenever a dispatch has to wait.
func (l *Limiter) OnWait(fn func(time.Duration)) {
	l.onWait = fn
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the limiter allows one dispatch, or ctx is done.
// Reserve guarantees exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return ErrCannotReserve
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	if l.onWait != nil {
		l.onWait(delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
