// Package tray keeps the presentation state the desktop tray used to show:
// how many captures are in progress, the queue label and the most recent
// uploads. A Renderer receives a fresh Snapshot after every change.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/queue"
)

const HistorySize = 10

type Item struct {
	Title        string    `json:"title"`
	PermalinkURL string    `json:"permalink_url"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type Snapshot struct {
	Processing  int    `json:"processing"`
	QueueLength int    `json:"queue_length"`
	Online      bool   `json:"online"`
	Recent      []Item `json:"recent"`
}

// Busy reports whether the processing icon would be shown.
func (s Snapshot) Busy() bool {
	return s.Processing > 0
}

// Label is the queue line of the menu, empty when nothing is queued.
func (s Snapshot) Label() string {
	if s.QueueLength == 0 {
		return ""
	}
	if s.Online {
		return fmt.Sprintf("Uploading %d captures...", s.QueueLength)
	}
	return fmt.Sprintf("Waiting for internet connection for %d captures...", s.QueueLength)
}

// Renderer is called with the tray lock held, so snapshots arrive in order.
// It must not call back into the Tray.
type Renderer interface {
	Render(Snapshot)
}

// Renderers fans a snapshot out to each renderer in turn.
type Renderers []Renderer

func (rs Renderers) Render(s Snapshot) {
	for _, r := range rs {
		r.Render(s)
	}
}

type Tray struct {
	mu         sync.Mutex
	processing int
	queued     int
	queueSeq   uint64
	online     bool
	recent     []Item
	renderer   Renderer
	now        func() time.Time
}

func New(r Renderer) *Tray {
	return &Tray{renderer: r, now: time.Now}
}

func (t *Tray) JobStarted() {
	t.update(func() { t.processing++ })
}

func (t *Tray) JobFinished() {
	t.update(func() {
		if t.processing > 0 {
			t.processing--
		}
	})
}

// SetQueue matches queue.Options.OnChange. Stats older than the last ones
// seen are dropped.
func (t *Tray) SetQueue(s queue.Stats) {
	t.update(func() {
		if s.Seq != 0 && s.Seq <= t.queueSeq {
			return
		}
		t.queueSeq = s.Seq
		t.queued = s.Waiting + s.Running
	})
}

func (t *Tray) SetOnline(online bool) {
	t.update(func() { t.online = online })
}

// Push records a successful upload, most recent first, keeping HistorySize
// items.
func (t *Tray) Push(title, permalinkURL string) {
	t.update(func() {
		item := Item{Title: title, PermalinkURL: permalinkURL, UploadedAt: t.now()}
		recent := make([]Item, 0, HistorySize)
		recent = append(recent, item)
		recent = append(recent, t.recent...)
		if len(recent) > HistorySize {
			recent = recent[:HistorySize]
		}
		t.recent = recent
	})
}

func (t *Tray) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tray) snapshotLocked() Snapshot {
	recent := make([]Item, len(t.recent))
	copy(recent, t.recent)
	return Snapshot{
		Processing:  t.processing,
		QueueLength: t.queued,
		Online:      t.online,
		Recent:      recent,
	}
}

func (t *Tray) update(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn()
	if t.renderer != nil {
		t.renderer.Render(t.snapshotLocked())
	}
}
