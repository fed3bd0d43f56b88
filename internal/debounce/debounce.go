// Package debounce coalesces bursts of filesystem events for one path into a
// single call once the path has been quiet for a settle window.
package debounce

import (
	"context"
	"sync"
	"time"
)

const DefaultWindow = 500 * time.Millisecond

// Debouncer keeps a counter per path. The first event for an idle path starts
// one waiter goroutine; later events only bump the counter. The waiter fires
// once the counter stayed unchanged for a whole window. At most one waiter
// exists per path, so fire calls for the same path never overlap.
type Debouncer struct {
	window time.Duration
	fire   func(ctx context.Context, path string)

	mu       sync.Mutex
	counters map[string]uint64
	wg       sync.WaitGroup
}

func New(window time.Duration, fire func(ctx context.Context, path string)) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:   window,
		fire:     fire,
		counters: make(map[string]uint64),
	}
}

// Trigger records one event for path.
func (d *Debouncer) Trigger(ctx context.Context, path string) {
	d.mu.Lock()
	n := d.counters[path]
	d.counters[path] = n + 1
	d.mu.Unlock()

	if n != 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.wait(ctx, path)
	}()
}

func (d *Debouncer) wait(ctx context.Context, path string) {
	timer := time.NewTimer(d.window)
	defer timer.Stop()

	for {
		last := d.count(path)

		timer.Reset(d.window)
		select {
		case <-ctx.Done():
			d.mu.Lock()
			delete(d.counters, path)
			d.mu.Unlock()
			return
		case <-timer.C:
		}

		if d.count(path) != last {
			continue
		}

		d.fire(ctx, path)

		d.mu.Lock()
		if d.counters[path] == last {
			delete(d.counters, path)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

func (d *Debouncer) count(path string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters[path]
}

// Wait blocks until every waiter goroutine has returned.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}
