// Package desktop holds the thin OS integrations of the agent: user
// notifications, the clipboard and opening a URL in the browser.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/gen2brain/beeep"
	"github.com/pkg/browser"
)

var ErrUnsupportedPlatform = errors.New("no desktop support for this platform")

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

type Opener interface {
	OpenURL(ctx context.Context, url string) error
}

// System implements all three collaborators with the platform integrations
// of beeep, atotto/clipboard and pkg/browser.
type System struct {
	notify         func(title, body string) error
	writeClipboard func(text string) error
	openURL        func(url string) error
	unsupported    func() bool
}

func NewSystem() *System {
	// browser echoes the output of xdg-open and friends.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	return &System{
		notify:         func(title, body string) error { return beeep.Notify(title, body, "") },
		writeClipboard: clipboard.WriteAll,
		openURL:        browser.OpenURL,
		unsupported:    func() bool { return clipboard.Unsupported },
	}
}

func (s *System) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.notify(title, body); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (s *System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unsupported() {
		return fmt.Errorf("install wl-clipboard, xclip or xsel: %w", ErrUnsupportedPlatform)
	}
	if err := s.writeClipboard(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

func (s *System) OpenURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.openURL(url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// LogNotifier logs every notification and forwards it to next, if any.
// A failing next is logged, not returned, since notifications are advisory.
type LogNotifier struct {
	Next   Notifier
	Logger logging.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.Logger.Warn(ctx, "notification", "title", title, "body", body)
	if n.Next == nil {
		return nil
	}
	if err := n.Next.Notify(ctx, title, body); err != nil {
		n.Logger.Debug(ctx, "desktop notification failed", "error", err)
	}
	return nil
}
