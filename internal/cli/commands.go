package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gyazemon/internal/app"
	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/tray"
	"github.com/dmitrijs2005/gyazemon/internal/watchlist"
	"go.uber.org/multierr"
)

func (a *App) run(ctx context.Context) (err error) {
	agent, err := a.newAgent(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, agent.Close()) }()

	if err := agent.Run(ctx); err != nil {
		if app.IsNoAccessToken(err) {
			fmt.Fprintln(a.errOut, "Gyazo access token is not set. Run `gyazemon token` first.")
		}
		return err
	}
	return nil
}

func (a *App) upload(ctx context.Context, args []string) (err error) {
	if len(args) == 0 {
		fmt.Fprintln(a.errOut, "Usage: gyazemon upload <file>...")
		return ErrUsage
	}

	agent, err := a.newAgent(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, agent.Close()) }()

	var errs error
	for _, o := range agent.UploadOnce(ctx, args) {
		switch {
		case o.Err != nil:
			fmt.Fprintf(a.out, "%s: %v\n", o.Path, o.Err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", o.Path, o.Err))
		case o.Result == nil:
			fmt.Fprintf(a.out, "%s: skipped\n", o.Path)
		default:
			fmt.Fprintf(a.out, "%s %s\n", o.Path, o.Result.PermalinkURL)
		}
	}
	return errs
}

func (a *App) token(ctx context.Context, args []string) error {
	var token string
	if len(args) > 0 {
		token = strings.TrimSpace(args[0])
	} else {
		var err error
		token, err = GetSecret(a.in, a.out, "Gyazo access token: ")
		if err != nil {
			return err
		}
	}
	if token == "" {
		return fmt.Errorf("%w: empty access token", ErrUsage)
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Settings.SetAccessToken(ctx, token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Access token saved.")
	return nil
}

func (a *App) watch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.errOut, "Usage: gyazemon watch ls|add|rm")
		return ErrUsage
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "ls", "list":
		entries, err := st.Settings.Watchlist(ctx)
		if err != nil {
			return err
		}
		printWatchlist(a.out, entries)
		return nil

	case "add":
		e, err := parseWatchAdd(args[1:])
		if err != nil {
			fmt.Fprintln(a.errOut, "Usage: gyazemon watch add <dir> [-clipboard] [-open]")
			return err
		}
		info, err := os.Stat(e.Path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", e.Path)
		}
		if _, err := st.Settings.UpdateWatchlist(ctx, func(entries []watchlist.Entry) ([]watchlist.Entry, error) {
			return watchlist.Add(entries, e)
		}); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %s\n", e.Path)
		a.notifyAgent(ctx)
		return nil

	case "rm", "remove":
		if len(args) != 2 {
			fmt.Fprintln(a.errOut, "Usage: gyazemon watch rm <dir>")
			return ErrUsage
		}
		path, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		if _, err := st.Settings.UpdateWatchlist(ctx, func(entries []watchlist.Entry) ([]watchlist.Entry, error) {
			next, ok := watchlist.Remove(entries, path)
			if !ok {
				return nil, fmt.Errorf("%s: %w", path, common.ErrorNotFound)
			}
			return next, nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed %s\n", path)
		a.notifyAgent(ctx)
		return nil

	default:
		fmt.Fprintf(a.errOut, "unknown watch command %q\n", args[0])
		return ErrUsage
	}
}

func (a *App) status() error {
	snap, err := tray.ReadStatus(filepath.Join(a.config.DataDir, app.StatusFile))
	if errors.Is(err, common.ErrorNotFound) {
		fmt.Fprintln(a.out, "Gyazemon is not running.")
		return nil
	}
	if err != nil {
		return err
	}
	return tray.WriteMenu(a.out, snap)
}

// notifyAgent makes a running agent pick up the new watchlist.
func (a *App) notifyAgent(ctx context.Context) {
	err := app.SignalReload(a.config.DataDir)
	switch {
	case err == nil:
		fmt.Fprintln(a.out, "Reloaded the running agent.")
	case errors.Is(err, common.ErrorNotFound):
		a.logger.Debug(ctx, "no running agent to reload")
	default:
		a.logger.Warn(ctx, "cannot reload running agent", "error", err)
	}
}

// parseWatchAdd accepts the flags before or after the directory.
func parseWatchAdd(args []string) (watchlist.Entry, error) {
	var e watchlist.Entry
	fs := flag.NewFlagSet("watch add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&e.WritesClipboard, "clipboard", false, "copy the permalink to the clipboard")
	fs.BoolVar(&e.OpensNewTab, "open", false, "open the permalink in a browser")

	var flags, positional []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
		} else {
			positional = append(positional, arg)
		}
	}
	if err := fs.Parse(flags); err != nil {
		return e, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if len(positional) != 1 {
		return e, ErrUsage
	}

	path, err := filepath.Abs(positional[0])
	if err != nil {
		return e, err
	}
	e.Path = path
	return e, nil
}

func printWatchlist(w io.Writer, entries []watchlist.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No directories are watched.")
		return
	}
	for _, e := range entries {
		var opts []string
		if e.WritesClipboard {
			opts = append(opts, "clipboard")
		}
		if e.OpensNewTab {
			opts = append(opts, "open")
		}
		if len(opts) > 0 {
			fmt.Fprintf(w, "%s [%s]\n", e.Path, strings.Join(opts, ", "))
		} else {
			fmt.Fprintln(w, e.Path)
		}
	}
}
