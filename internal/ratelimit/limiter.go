// Package ratelimit implements the token-bucket gate that every
// outbound exchange call passes through. The bucket refills lazily with
// elapsed time; tokens are never returned.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// retryWait is how long a caller sleeps after finding the bucket empty
// before re-checking. The lock is never held while sleeping, so a
// blocked caller cannot starve the others.
const retryWait = 100 * time.Millisecond

// Limiter admits at most capacity calls per window, shared across all
// concurrent callers.
type Limiter struct {
	capacity float64
	window   time.Duration

	// sem serializes the read-refill-decide section. A channel-based
	// mutex so the critical section itself stays cancellable.
	sem chan struct{}

	tokens     float64
	lastRefill time.Time

	now func() time.Time // injectable clock for tests
}

// New creates a full bucket admitting capacity calls per window.
func New(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 || window <= 0 {
		panic(fmt.Sprintf("ratelimit: invalid capacity=%d window=%v", capacity, window))
	}
	l := &Limiter{
		capacity: float64(capacity),
		window:   window,
		sem:      make(chan struct{}, 1),
		tokens:   float64(capacity),
		now:      time.Now,
	}
	l.lastRefill = l.now()
	return l
}

// NewWithClock is like New but reads time through now. Used by tests to
// drive the refill law deterministically.
func NewWithClock(capacity int, window time.Duration, now func() time.Time) *Limiter {
	l := New(capacity, window)
	l.lastRefill = now()
	l.now = now
	return l
}

// Acquire blocks until one token is available, then consumes it.
// It fails only when ctx is cancelled, in which case no token has been
// consumed on the caller's behalf.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			<-l.sem
			return nil
		}
		// Not enough tokens. Wait outside the critical section until
		// roughly one token has accrued, then retry.
		wait := l.timeToNextToken()
		<-l.sem

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// TryAcquire consumes a token if one is immediately available.
func (l *Limiter) TryAcquire() bool {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Tokens reports the current token count after a refill. Diagnostic.
func (l *Limiter) Tokens() float64 {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	l.refill()
	return l.tokens
}

// refill credits tokens for the time elapsed since the last refill,
// clamped to capacity. Caller must hold sem.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed.Seconds() * l.capacity / l.window.Seconds()
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// timeToNextToken estimates the wait until one full token has accrued,
// bounded below by retryWait. Caller must hold sem.
func (l *Limiter) timeToNextToken() time.Duration {
	deficit := 1 - l.tokens
	if deficit <= 0 {
		return retryWait
	}
	wait := time.Duration(deficit * float64(l.window) / l.capacity)
	if wait < retryWait {
		wait = retryWait
	}
	return wait
}
