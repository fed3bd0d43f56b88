// Package watcher reports files added to or changed under a directory tree.
// It wraps fsnotify, follows newly created subdirectories and can hold events
// back until a file stops growing.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/fsnotify/fsnotify"
)

type Kind int

const (
	Added Kind = iota
	Changed
)

func (k Kind) String() string {
	if k == Added {
		return "add"
	}
	return "change"
}

type FileEvent struct {
	Path string
	Kind Kind
}

type Options struct {
	// EmitInitial reports files that already exist when Run starts.
	EmitInitial bool
	// AwaitWriteFinish holds an event until the file's size and mtime stayed
	// the same for StabilityThreshold, polling every PollInterval.
	AwaitWriteFinish   bool
	StabilityThreshold time.Duration
	PollInterval       time.Duration
}

func DefaultOptions() Options {
	return Options{
		AwaitWriteFinish:   true,
		StabilityThreshold: 2 * time.Second,
		PollInterval:       100 * time.Millisecond,
	}
}

type Watcher struct {
	root   string
	opts   Options
	logger logging.Logger
	fsw    *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]Kind
	wg      sync.WaitGroup
}

// New starts watching root and every directory below it.
func New(root string, opts Options, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	if opts.StabilityThreshold <= 0 {
		opts.StabilityThreshold = DefaultOptions().StabilityThreshold
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    root,
		opts:    opts,
		logger:  logger.With("root", root),
		fsw:     fsw,
		pending: make(map[string]Kind),
	}
	if err := w.addTree(root, nil); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Root() string {
	return w.root
}

// Run delivers events to handle until ctx is done or Close is called.
// handle is called from the watcher's goroutines and must not block for long.
func (w *Watcher) Run(ctx context.Context, handle func(FileEvent)) error {
	defer w.wg.Wait()

	if w.opts.EmitInitial {
		err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.Type().IsRegular() {
				w.emit(ctx, FileEvent{Path: path, Kind: Added}, handle)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	w.logger.Info(ctx, fmt.Sprintf("Watching %s ...", w.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, handle)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watch error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, handle func(FileEvent)) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// files may land in the directory before it is watched
			if err := w.addTree(ev.Name, func(path string) {
				w.emit(ctx, FileEvent{Path: path, Kind: Added}, handle)
			}); err != nil {
				w.logger.Warn(ctx, "cannot watch directory", "path", ev.Name, "error", err)
			}
			return
		}
		w.emit(ctx, FileEvent{Path: ev.Name, Kind: Added}, handle)
	case ev.Has(fsnotify.Write):
		w.emit(ctx, FileEvent{Path: ev.Name, Kind: Changed}, handle)
	}
}

// addTree watches dir and its subdirectories, calling onFile for every
// regular file found when onFile is not nil.
func (w *Watcher) addTree(dir string, onFile func(string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if onFile != nil && d.Type().IsRegular() {
			onFile(path)
		}
		return nil
	})
}

func (w *Watcher) emit(ctx context.Context, ev FileEvent, handle func(FileEvent)) {
	if !w.opts.AwaitWriteFinish {
		handle(ev)
		return
	}

	w.mu.Lock()
	if kind, ok := w.pending[ev.Path]; ok {
		if ev.Kind == Added && kind != Added {
			w.pending[ev.Path] = Added
		}
		w.mu.Unlock()
		return
	}
	w.pending[ev.Path] = ev.Kind
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		stable := w.awaitStable(ctx, ev.Path)

		w.mu.Lock()
		kind := w.pending[ev.Path]
		delete(w.pending, ev.Path)
		w.mu.Unlock()

		if stable {
			handle(FileEvent{Path: ev.Path, Kind: kind})
		}
	}()
}

// awaitStable polls path until size and mtime are unchanged for the
// stability threshold. It returns false if the file vanished or ctx ended.
func (w *Watcher) awaitStable(ctx context.Context, path string) bool {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var (
		lastSize int64 = -1
		lastMod  time.Time
		since    time.Time
	)
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		now := time.Now()
		if info.Size() != lastSize || !info.ModTime().Equal(lastMod) {
			lastSize, lastMod, since = info.Size(), info.ModTime(), now
		} else if now.Sub(since) >= w.opts.StabilityThreshold {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
