// Package queue is the process-wide admission queue every upload attempt
// passes through. It bounds how many uploads run at once and, optionally,
// how many may start per fixed time window. Clear cancels every entry that
// has not started yet; running entries are left alone.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"golang.org/x/sync/semaphore"
)

// Stats is the queue occupancy. Seq grows with every change so a consumer
// receiving updates from several goroutines can drop stale ones.
type Stats struct {
	Waiting int
	Running int
	Seq     uint64
}

type Options struct {
	// Concurrency caps running entries. Values below 1 mean 1.
	Concurrency int
	// Quota and Window enable the fixed-window policy when both are positive.
	Quota  int
	Window time.Duration
	// OnChange is called after every change of Stats.
	OnChange func(Stats)
}

type generationKey struct{}

type Queue struct {
	sem      *semaphore.Weighted
	limiter  *WindowLimiter
	onChange func(Stats)

	mu      sync.Mutex
	gen     context.Context
	genID   uint64
	clear   context.CancelFunc
	waiting int
	running int
	seq     uint64
}

func New(opts Options) *Queue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	q := &Queue{
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		onChange: opts.OnChange,
		genID:    1,
	}
	if opts.Quota > 0 && opts.Window > 0 {
		q.limiter = NewWindowLimiter(opts.Quota, opts.Window)
	}
	q.gen, q.clear = context.WithCancel(context.Background())
	return q
}

// Do waits for admission and runs fn. It returns common.ErrQueueCleared when
// the entry was cleared before starting, ctx.Err() when ctx ended first, and
// fn's error otherwise. The context passed to fn carries the generation the
// entry was admitted in, see Generation.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	gen, genID := q.gen, q.genID
	q.waiting++
	stats := q.changedLocked()
	q.mu.Unlock()
	q.notify(stats)

	admitCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(gen, cancel)
	err := q.admit(admitCtx)
	stop()
	cancel()

	q.mu.Lock()
	q.waiting--
	if err == nil && gen.Err() != nil {
		q.sem.Release(1)
		err = gen.Err()
	}
	if err != nil {
		stats = q.changedLocked()
		q.mu.Unlock()
		q.notify(stats)
		if gen.Err() != nil && ctx.Err() == nil {
			return common.ErrQueueCleared
		}
		return err
	}
	q.running++
	stats = q.changedLocked()
	q.mu.Unlock()
	q.notify(stats)

	defer func() {
		q.sem.Release(1)
		q.mu.Lock()
		q.running--
		stats := q.changedLocked()
		q.mu.Unlock()
		q.notify(stats)
	}()

	return fn(context.WithValue(ctx, generationKey{}, genID))
}

func (q *Queue) admit(ctx context.Context) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if q.limiter == nil {
		return nil
	}
	if err := q.limiter.Wait(ctx); err != nil {
		q.sem.Release(1)
		return err
	}
	return nil
}

// Generation returns the generation an entry was admitted in. ctx must be
// the one Do passed to fn.
func Generation(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(generationKey{}).(uint64)
	return id, ok
}

// Clear cancels every waiting entry of generation gen and starts a new
// generation. It returns how many entries were canceled and whether this
// call did the clearing; a second Clear for an already cleared generation
// is a no-op.
func (q *Queue) Clear(gen uint64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.genID {
		return 0, false
	}
	n := q.waiting
	q.clear()
	q.gen, q.clear = context.WithCancel(context.Background())
	q.genID++
	return n, true
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Waiting: q.waiting, Running: q.running, Seq: q.seq}
}

func (q *Queue) changedLocked() Stats {
	q.seq++
	return Stats{Waiting: q.waiting, Running: q.running, Seq: q.seq}
}

func (q *Queue) notify(s Stats) {
	if q.onChange != nil {
		q.onChange(s)
	}
}

// IsCleared reports whether err came from Clear.
func IsCleared(err error) bool {
	return errors.Is(err, common.ErrQueueCleared)
}
