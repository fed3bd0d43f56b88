// Package network tracks whether the machine can reach the upload service.
// Uploads park in Monitor.WaitOnline while offline; a Prober feeds the
// monitor from periodic HEAD requests.
package network

import (
	"context"
	"sync"
)

// Monitor holds the online flag. Every offline period owns one wake channel
// that is closed on the transition back online, releasing all waiters at once.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	wake     chan struct{}
	onChange func(online bool)
}

func NewMonitor(online bool) *Monitor {
	m := &Monitor{online: online, wake: make(chan struct{})}
	if online {
		close(m.wake)
	}
	return m
}

// OnChange registers fn to be called after every transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state. Repeating the current state is a no-op.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	if online {
		close(m.wake)
	} else {
		m.wake = make(chan struct{})
	}
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(online)
	}
}

// WaitOnline returns immediately when online, otherwise blocks until the next
// online transition or until ctx is done.
func (m *Monitor) WaitOnline(ctx context.Context) error {
	m.mu.Lock()
	wake := m.wake
	m.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
