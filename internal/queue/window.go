package queue

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter is a fixed-window limiter: at most quota admissions per
// window, counted from the first admission of the window.
type WindowLimiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	quota       int
	window      time.Duration
	now         func() time.Time
}

func NewWindowLimiter(quota int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		quota:  quota,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until an admission is available or ctx is done.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *WindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.roll(now)
	if l.count < l.quota {
		if l.count == 0 {
			l.windowStart = now
		}
		l.count++
		return 0
	}
	return l.windowStart.Add(l.window).Sub(now)
}

func (l *WindowLimiter) roll(now time.Time) {
	if l.count > 0 && now.Sub(l.windowStart) >= l.window {
		l.count = 0
	}
}
