package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gyazemon/internal/app"
	"github.com/dmitrijs2005/gyazemon/internal/buildinfo"
	"github.com/dmitrijs2005/gyazemon/internal/config"
	"github.com/dmitrijs2005/gyazemon/internal/filex"
	"github.com/dmitrijs2005/gyazemon/internal/flagx"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dmitrijs2005/gyazemon/internal/store"
	"go.uber.org/multierr"
)

const usage = `Usage: gyazemon [global flags] <command> [args]

Commands:
  run                                 watch the configured directories
  upload <file>...                    upload files now
  token [value]                       save the Gyazo access token
  watch ls                            list watched directories
  watch add <dir> [-clipboard] [-open]
  watch rm <dir>
  status                              show the running agent's queue and recent uploads
  version                             print build information

Global flags:
  -c <file>   config file (JSON or YAML)
  -d <dir>    data directory
  -e <url>    upload endpoint
  -p <name>   rate limit policy (serial|window)
  -q <n>      rate limit quota
  -w <sec>    rate limit window
  -i <sec>    online check interval (0 disables)
  -l <level>  log level
`

var ErrUsage = errors.New("invalid usage")

type App struct {
	config  *config.Config
	logger  logging.Logger
	logFile io.Closer
	in      io.Reader
	out     io.Writer
	errOut  io.Writer

	// newAgent builds the watcher application; replaced in tests.
	newAgent func(ctx context.Context) (*app.App, error)
}

// NewApp prepares the data directory and the log file.
func NewApp(c *config.Config) (*App, error) {
	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, err
	}
	c.DataDir = dataDir

	f, err := os.OpenFile(filepath.Join(dataDir, app.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger, err := logging.New(c.LogLevel, os.Stderr, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a := &App{
		config:  c,
		logger:  logger,
		logFile: f,
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	a.newAgent = func(ctx context.Context) (*app.App, error) {
		return app.NewApp(ctx, a.config, a.logger, app.Options{})
	}
	return a, nil
}

// Run dispatches the command found in args after the global flags.
func (a *App) Run(ctx context.Context, args []string) (err error) {
	defer func() {
		if a.logFile != nil {
			err = multierr.Append(err, a.logFile.Close())
		}
	}()

	rest := flagx.StripArgs(args, config.GlobalFlags)
	if len(rest) == 0 {
		fmt.Fprint(a.errOut, usage)
		return ErrUsage
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return a.run(ctx)
	case "upload":
		return a.upload(ctx, cmdArgs)
	case "token":
		return a.token(ctx, cmdArgs)
	case "watch":
		return a.watch(ctx, cmdArgs)
	case "status":
		return a.status()
	case "version":
		buildinfo.PrintBuildData(a.out)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.errOut, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(a.config.DataDir, app.DatabaseFile))
}
