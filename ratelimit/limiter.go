// Package ratelimit gates outgoing requests to a minimum interval.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits one request per interval across all of its callers.
//
// The only shared state is the earliest instant the next request may start.
// Each admission computes its slot and advances that instant inside one short
// critical section; the wait itself happens outside the lock, so concurrent
// callers sleep in parallel but never share a slot.
//
// A nil *Limiter admits immediately.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	clock    Timer
}

// New creates a limiter using real time. A non-positive interval disables
// throttling and returns nil.
func New(interval time.Duration) *Limiter {
	return NewWithTimer(interval, nil)
}

// NewWithTimer creates a limiter driven by the given clock.
func NewWithTimer(interval time.Duration, clock Timer) *Limiter {
	if interval <= 0 {
		return nil
	}
	if clock == nil {
		clock = Clock{}
	}

	return &Limiter{
		interval: interval,
		clock:    clock,
	}
}

// Interval reports the configured gap between admissions.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Admit blocks until the caller's slot arrives or ctx is done.
func (l *Limiter) Admit(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	_, wait := l.schedule()
	return l.clock.Sleep(ctx, wait)
}

// schedule reserves the next slot and returns its instant and the delay
// until it. A slot is never handed back, even if its caller gives up while
// waiting, so next only moves forward.
func (l *Limiter) schedule() (time.Time, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	slot := now
	if slot.Before(l.next) {
		slot = l.next
	}
	l.next = slot.Add(l.interval)

	return slot, slot.Sub(now)
}

// IntervalFor converts a requests-per-minute budget into an interval and
// keeps whichever of the two is stricter.
func IntervalFor(interval time.Duration, perMinute int) time.Duration {
	if perMinute <= 0 {
		return interval
	}
	if perReq := time.Minute / time.Duration(perMinute); perReq > interval {
		return perReq
	}
	return interval
}
