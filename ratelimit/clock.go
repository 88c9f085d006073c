package ratelimit

import (
	"context"
	"time"
)

// Timer supplies the current time and a cancellable sleep.
type Timer interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock is the wall-clock Timer.
type Clock struct{}

func (Clock) Now() time.Time { return time.Now() }

func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
