package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	events []FileEvent
}

func (s *sink) handle(ev FileEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *sink) snapshot() []FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FileEvent(nil), s.events...)
}

func (s *sink) has(path string, kind Kind) bool {
	for _, ev := range s.snapshot() {
		if ev.Path == path && ev.Kind == kind {
			return true
		}
	}
	return false
}

func start(t *testing.T, root string, opts Options) *sink {
	t.Helper()
	w, err := New(root, opts, logging.Nop{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := &sink{}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, s.handle) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		_ = w.Close()
	})
	return s
}

func TestNew_RejectsMissingOrFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), Options{}, nil)
	require.Error(t, err)

	f := filepath.Join(t.TempDir(), "f.png")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
	_, err = New(f, Options{}, nil)
	require.Error(t, err)
}

func TestRun_ReportsAddAndChange(t *testing.T) {
	root := t.TempDir()
	s := start(t, root, Options{})
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))
	require.Eventually(t, func() bool { return s.has(path, Added) }, 2*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("more"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Eventually(t, func() bool { return s.has(path, Changed) }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_FollowsNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	s := start(t, root, Options{})
	time.Sleep(50 * time.Millisecond)

	sub := filepath.Join(root, "2026", "10")
	require.NoError(t, os.MkdirAll(sub, 0o700))
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(sub, "late.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.Eventually(t, func() bool { return s.has(path, Added) }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_IgnoresInitialFilesByDefault(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.png")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))

	s := start(t, root, Options{})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.snapshot())
}

func TestRun_EmitInitial(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.png")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))

	s := start(t, root, Options{EmitInitial: true})
	require.Eventually(t, func() bool { return s.has(existing, Added) }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_AwaitWriteFinishEmitsOnceWhenStable(t *testing.T) {
	root := t.TempDir()
	s := start(t, root, Options{
		AwaitWriteFinish:   true,
		StabilityThreshold: 80 * time.Millisecond,
		PollInterval:       10 * time.Millisecond,
	})
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "big.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	assert.Empty(t, s.snapshot(), "nothing while the file is still growing")
	require.Eventually(t, func() bool { return len(s.snapshot()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, []FileEvent{{Path: path, Kind: Added}}, s.snapshot())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "add", Added.String())
	assert.Equal(t, "change", Changed.String())
}
