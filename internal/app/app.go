// Package app wires the agent together: it opens the store, builds the
// upload pipeline and its collaborators, and runs one watcher per watchlist
// entry until the context ends. SIGHUP reloads the watchlist.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/config"
	"github.com/dmitrijs2005/gyazemon/internal/debounce"
	"github.com/dmitrijs2005/gyazemon/internal/desktop"
	"github.com/dmitrijs2005/gyazemon/internal/filex"
	"github.com/dmitrijs2005/gyazemon/internal/fontsize"
	"github.com/dmitrijs2005/gyazemon/internal/gyazo"
	"github.com/dmitrijs2005/gyazemon/internal/loader"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dmitrijs2005/gyazemon/internal/network"
	"github.com/dmitrijs2005/gyazemon/internal/pipeline"
	"github.com/dmitrijs2005/gyazemon/internal/queue"
	"github.com/dmitrijs2005/gyazemon/internal/store"
	"github.com/dmitrijs2005/gyazemon/internal/tray"
	"github.com/dmitrijs2005/gyazemon/internal/watcher"
	"github.com/dmitrijs2005/gyazemon/internal/watchlist"
	"go.uber.org/multierr"
)

const (
	DatabaseFile = "gyazemon.db"
	LogFile      = "gyazemon.log"
	PIDFile      = "gyazemon.pid"
	StatusFile   = "status.json"
)

// Desktop bundles the OS collaborators so tests can replace them.
type Desktop interface {
	desktop.Notifier
	desktop.Clipboard
	desktop.Opener
}

type Options struct {
	// Uploader replaces the Gyazo client built from the config.
	Uploader pipeline.Uploader
	// Desktop replaces the platform commands.
	Desktop Desktop
	// Pinger replaces the HTTP reachability probe.
	Pinger network.Pinger
	// WatcherOptions replaces watcher.DefaultOptions.
	WatcherOptions *watcher.Options
}

type App struct {
	config   *config.Config
	dataDir  string
	logger   logging.Logger
	store    *store.Store
	pipeline *pipeline.Pipeline
	queue    *queue.Queue
	monitor  *network.Monitor
	tray     *tray.Tray
	prober   *network.Prober
	watchOpt watcher.Options

	mu       sync.Mutex
	watchers map[string]*watch
	runCtx   context.Context
	wg       sync.WaitGroup
}

type watch struct {
	entry     watchlist.Entry
	w         *watcher.Watcher
	debouncer *debounce.Debouncer
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewApp opens the data directory and builds every component.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, opts Options) (*App, error) {
	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, filepath.Join(dataDir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	a := &App{
		config:   c,
		dataDir:  dataDir,
		logger:   logger,
		store:    st,
		watchers: make(map[string]*watch),
	}

	a.tray = tray.New(tray.Renderers{
		tray.NewLogRenderer(logger),
		&tray.FileRenderer{Path: filepath.Join(dataDir, StatusFile), Logger: logger},
	})

	qopts := queue.Options{Concurrency: c.Concurrency(), OnChange: a.tray.SetQueue}
	if c.RateLimitPolicy == config.PolicyWindow {
		qopts.Quota = c.RateLimitQuota
		qopts.Window = c.RateLimitWindow
	}
	a.queue = queue.New(qopts)

	// Without probing there is nothing that could ever bring the monitor
	// back online, so start online.
	a.monitor = network.NewMonitor(c.OnlineCheckInterval <= 0)
	a.monitor.OnChange(a.tray.SetOnline)
	a.tray.SetOnline(a.monitor.Online())
	if c.OnlineCheckInterval > 0 {
		pinger := opts.Pinger
		if pinger == nil {
			pinger = &network.HTTPPinger{URL: probeURL(c.UploadEndpoint)}
		}
		a.prober = network.NewProber(pinger, a.monitor, c.OnlineCheckInterval, logger)
	}

	uploader := opts.Uploader
	if uploader == nil {
		uploader = gyazo.NewClient(gyazo.WithEndpoint(c.UploadEndpoint), gyazo.WithTimeout(c.RequestTimeout))
	}

	dt := opts.Desktop
	if dt == nil {
		dt = desktop.NewSystem()
	}

	var detector pipeline.ZoomDetector
	if c.FontDetection {
		rec := &fontsize.TesseractRecognizer{Path: c.TesseractPath, Language: c.OCRLanguage}
		detector = fontsize.NewDetector(rec, c.FontDetectionTimeout, logger)
	}

	ld := loader.New(&loader.PdftoppmRenderer{Path: c.PdftoppmPath},
		loader.WithZoom(c.PDFZoom),
		loader.WithRenderTimeout(c.RenderTimeout))

	a.pipeline = pipeline.New(pipeline.Deps{
		Uploader:  uploader,
		Uploaded:  st.Uploaded,
		Tokens:    st.Settings,
		Loader:    ld,
		Queue:     a.queue,
		Detector:  detector,
		Network:   a.monitor,
		History:   a.tray,
		Notifier:  &desktop.LogNotifier{Next: dt, Logger: logger},
		Clipboard: dt,
		Opener:    dt,
		Logger:    logger,
	}, pipeline.Options{Attempts: c.UploadAttempts})

	a.watchOpt = watcher.DefaultOptions()
	a.watchOpt.AwaitWriteFinish = c.AwaitWriteFinish
	if opts.WatcherOptions != nil {
		a.watchOpt = *opts.WatcherOptions
	}

	return a, nil
}

// Run watches every configured directory until ctx is done or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	token, err := a.store.Settings.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: run `gyazemon token` first", common.ErrNoAccessToken)
	}

	uploaded, err := a.store.Uploaded.Len(ctx)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "Starting app...", "data_dir", a.config.DataDir, "policy", a.config.RateLimitPolicy, "uploaded", uploaded)
	a.initSignalHandler(ctx, cancel)

	pidPath := filepath.Join(a.dataDir, PIDFile)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		a.logger.Warn(ctx, "cannot write pid file", "error", err)
	}
	defer os.Remove(pidPath)

	if a.prober != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.prober.Run(ctx)
		}()
	}

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	if err := a.Reload(ctx); err != nil {
		a.logger.Error(ctx, "cannot start watchers", "error", err)
	}

	<-ctx.Done()

	a.stopAll()
	a.wg.Wait()
	a.logger.Info(context.Background(), "Stopped")
	return nil
}

func (a *App) initSignalHandler(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					a.logger.Info(ctx, "reloading watchlist")
					if err := a.Reload(ctx); err != nil {
						a.logger.Error(ctx, "reload failed", "error", err)
					}
					continue
				}
				a.logger.Info(ctx, "shutting down", "signal", sig.String())
				cancel()
				return
			}
		}
	}()
}

// Reload reads the watchlist and restarts only the watchers whose entry was
// added, removed or changed. It is a no-op before Run.
func (a *App) Reload(ctx context.Context) error {
	entries, err := a.store.Settings.Watchlist(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCtx == nil {
		return nil
	}

	current := make([]watchlist.Entry, 0, len(a.watchers))
	for _, w := range a.watchers {
		current = append(current, w.entry)
	}
	added, removed := watchlist.Diff(current, entries)

	for _, e := range removed {
		if w, ok := a.watchers[e.Path]; ok {
			a.stopLocked(w)
			delete(a.watchers, e.Path)
		}
	}

	var errs error
	for _, e := range added {
		w, err := a.startLocked(a.runCtx, e)
		if err != nil {
			a.logger.Warn(ctx, "cannot watch", "path", e.Path, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.Path, err))
			continue
		}
		a.watchers[e.Path] = w
	}
	return errs
}

// watching lists the directories currently watched.
func (a *App) watching() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	paths := make([]string, 0, len(a.watchers))
	for p := range a.watchers {
		paths = append(paths, p)
	}
	return paths
}

func (a *App) startLocked(parent context.Context, e watchlist.Entry) (*watch, error) {
	wt, err := watcher.New(e.Path, a.watchOpt, a.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	w := &watch{entry: e, w: wt, cancel: cancel, done: make(chan struct{})}
	w.debouncer = debounce.New(a.config.DebounceWindow, func(ctx context.Context, path string) {
		_, _ = a.pipeline.Receive(ctx, pipeline.Request{
			Path:            path,
			WritesClipboard: e.WritesClipboard,
			OpensNewTab:     e.OpensNewTab,
			CheckUploaded:   true,
		})
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(w.done)
		if err := wt.Run(ctx, func(ev watcher.FileEvent) {
			a.logger.Debug(ctx, "file event", "path", ev.Path, "kind", ev.Kind)
			w.debouncer.Trigger(ctx, ev.Path)
		}); err != nil {
			a.logger.Error(ctx, "watcher stopped", "path", e.Path, "error", err)
		}
		w.debouncer.Wait()
	}()
	return w, nil
}

func (a *App) stopLocked(w *watch) {
	w.cancel()
	_ = w.w.Close()
	<-w.done
}

func (a *App) stopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p, w := range a.watchers {
		a.stopLocked(w)
		delete(a.watchers, p)
	}
	a.runCtx = nil
}

// UploadOnce uploads paths immediately, bypassing the uploaded set. The
// prober is not running, so the network is assumed online.
func (a *App) UploadOnce(ctx context.Context, paths []string) []pipeline.Outcome {
	a.monitor.Set(true)
	return a.pipeline.UploadOnce(ctx, paths)
}

// Close releases the watchers and the database, and removes the status file.
func (a *App) Close() error {
	var err error
	a.mu.Lock()
	for p, w := range a.watchers {
		w.cancel()
		err = multierr.Append(err, w.w.Close())
		delete(a.watchers, p)
	}
	a.mu.Unlock()

	if rmErr := os.Remove(filepath.Join(a.dataDir, StatusFile)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = multierr.Append(err, rmErr)
	}
	return multierr.Combine(err, a.store.Close())
}

func probeURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

// IsNoAccessToken reports whether Run refused to start for lack of a token.
func IsNoAccessToken(err error) bool {
	return errors.Is(err, common.ErrNoAccessToken)
}

// SignalReload asks the agent running on dataDir to reload its watchlist.
// It returns common.ErrorNotFound when no agent is running.
func SignalReload(dataDir string) error {
	b, err := os.ReadFile(filepath.Join(dataDir, PIDFile))
	if errors.Is(err, os.ErrNotExist) {
		return common.ErrorNotFound
	}
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("bad pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return common.ErrorNotFound
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
	}
	return nil
}
