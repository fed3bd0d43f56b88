package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/config"
	"github.com/dmitrijs2005/gyazemon/internal/gyazo"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dmitrijs2005/gyazemon/internal/tray"
	"github.com/dmitrijs2005/gyazemon/internal/watcher"
	"github.com/dmitrijs2005/gyazemon/internal/watchlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu   sync.Mutex
	reqs []gyazo.UploadRequest
}

func (f *fakeUploader) Upload(_ context.Context, r gyazo.UploadRequest) (*gyazo.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, r)
	id := fmt.Sprintf("img%d", len(f.reqs))
	return &gyazo.UploadResponse{PermalinkURL: "https://gyazo.com/" + id, ImageID: id}, nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeDesktop struct {
	mu        sync.Mutex
	clipboard []string
	opened    []string
	notified  []string
}

func (f *fakeDesktop) Notify(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, title)
	return nil
}

func (f *fakeDesktop) WriteText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clipboard = append(f.clipboard, text)
	return nil
}

func (f *fakeDesktop) OpenURL(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

func (f *fakeDesktop) clipboardCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clipboard...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.DataDir = t.TempDir()
	c.OnlineCheckInterval = 0
	c.DebounceWindow = 20 * time.Millisecond
	return c
}

func newTestApp(t *testing.T, c *config.Config) (*App, *fakeUploader, *fakeDesktop) {
	t.Helper()
	up := &fakeUploader{}
	dt := &fakeDesktop{}
	a, err := NewApp(context.Background(), c, logging.Nop{}, Options{
		Uploader:       up,
		Desktop:        dt,
		WatcherOptions: &watcher.Options{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, up, dt
}

func startApp(t *testing.T, a *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return cancel, done
}

func stopApp(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RefusesWithoutToken(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsNoAccessToken(err))
	assert.Contains(t, err.Error(), "gyazemon token")
}

func TestNewApp_CreatesDatabase(t *testing.T) {
	c := testConfig(t)
	c.DataDir = filepath.Join(c.DataDir, "nested", "data")
	_, _, _ = newTestApp(t, c)

	_, err := os.Stat(filepath.Join(c.DataDir, DatabaseFile))
	require.NoError(t, err)
}

func TestRun_UploadsNewFiles(t *testing.T) {
	a, up, dt := newTestApp(t, testConfig(t))
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, a.store.Settings.SetAccessToken(ctx, "tok"))
	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: dir, WritesClipboard: true}}))

	cancel, done := startApp(t, a)
	require.Eventually(t, func() bool { return len(a.watching()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot.png"), []byte("png-bytes"), 0o600))
	require.Eventually(t, func() bool { return up.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(dt.clipboardCopy()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "https://gyazo.com/img1", dt.clipboardCopy()[0])

	snap := a.tray.Snapshot()
	require.Len(t, snap.Recent, 1)
	assert.Equal(t, "shot.png", snap.Recent[0].Title)

	status, err := tray.ReadStatus(filepath.Join(a.dataDir, StatusFile))
	require.NoError(t, err)
	require.Len(t, status.Recent, 1)
	assert.Equal(t, "https://gyazo.com/img1", status.Recent[0].PermalinkURL)

	// Same content under another name is already uploaded.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.png"), []byte("png-bytes"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, up.count())

	// Unsupported files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, up.count())

	stopApp(t, cancel, done)
	assert.Empty(t, a.watching())
}

func TestClose_RemovesStatusFile(t *testing.T) {
	c := testConfig(t)
	a, err := NewApp(context.Background(), c, logging.Nop{}, Options{Uploader: &fakeUploader{}, Desktop: &fakeDesktop{}})
	require.NoError(t, err)

	a.tray.SetOnline(true)
	path := filepath.Join(c.DataDir, StatusFile)
	_, err = tray.ReadStatus(path)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, err = tray.ReadStatus(path)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestReload_StartsAndStopsWatchers(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()
	first, second := t.TempDir(), t.TempDir()

	require.NoError(t, a.store.Settings.SetAccessToken(ctx, "tok"))
	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: first}}))

	cancel, done := startApp(t, a)
	require.Eventually(t, func() bool { return len(a.watching()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: first}, {Path: second}}))
	require.NoError(t, a.Reload(ctx))
	got := a.watching()
	sort.Strings(got)
	want := []string{first, second}
	sort.Strings(want)
	assert.Equal(t, want, got)

	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: second}}))
	require.NoError(t, a.Reload(ctx))
	assert.Equal(t, []string{second}, a.watching())

	stopApp(t, cancel, done)
}

func TestReload_ReportsMissingDirectory(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")

	require.NoError(t, a.store.Settings.SetAccessToken(ctx, "tok"))
	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: dir}}))

	cancel, done := startApp(t, a)
	require.Eventually(t, func() bool { return len(a.watching()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: dir}, {Path: missing}}))
	err := a.Reload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Equal(t, []string{dir}, a.watching())

	stopApp(t, cancel, done)
}

func TestReload_BeforeRunIsNoop(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: t.TempDir()}}))

	require.NoError(t, a.Reload(ctx))
	assert.Empty(t, a.watching())
}

func TestUploadOnce_IgnoresUploadedSet(t *testing.T) {
	c := testConfig(t)
	c.OnlineCheckInterval = time.Hour
	a, up, dt := newTestApp(t, c)
	ctx := context.Background()
	require.NoError(t, a.store.Settings.SetAccessToken(ctx, "tok"))

	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	for i := 1; i <= 2; i++ {
		out := a.UploadOnce(ctx, []string{path})
		require.Len(t, out, 1)
		require.NoError(t, out[0].Err)
		require.NotNil(t, out[0].Result)
		assert.Equal(t, fmt.Sprintf("https://gyazo.com/img%d", i), out[0].Result.PermalinkURL)
	}
	assert.Equal(t, 2, up.count())
	assert.Empty(t, dt.clipboardCopy())
}

func TestSignalReload_NoAgent(t *testing.T) {
	err := SignalReload(t.TempDir())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSignalReload_ReloadsRunningAgent(t *testing.T) {
	c := testConfig(t)
	a, _, _ := newTestApp(t, c)
	ctx := context.Background()
	first, second := t.TempDir(), t.TempDir()

	require.NoError(t, a.store.Settings.SetAccessToken(ctx, "tok"))
	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: first}}))

	cancel, done := startApp(t, a)
	require.Eventually(t, func() bool { return len(a.watching()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.FileExists(t, filepath.Join(c.DataDir, PIDFile))

	require.NoError(t, a.store.Settings.SetWatchlist(ctx, []watchlist.Entry{{Path: first}, {Path: second}}))
	require.NoError(t, SignalReload(c.DataDir))
	require.Eventually(t, func() bool { return len(a.watching()) == 2 }, 2*time.Second, 10*time.Millisecond)

	stopApp(t, cancel, done)
	assert.NoFileExists(t, filepath.Join(c.DataDir, PIDFile))
}

func TestProbeURL(t *testing.T) {
	assert.Equal(t, "https://upload.gyazo.com/", probeURL("https://upload.gyazo.com/api/upload"))
	assert.Equal(t, "not a url", probeURL("not a url"))
}
