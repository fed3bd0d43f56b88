package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/flagx"
)

// GlobalFlags lists every valued flag owned by the configuration layer,
// including the config file flags.
var GlobalFlags = []string{"-c", "-config", "--config", "-d", "-e", "-p", "-q", "-w", "-i", "-l"}

// parseFlags overlays cfg with command-line flags.
//
//	-d string   data directory
//	-e string   upload endpoint
//	-p string   rate limit policy (serial|window)
//	-q int      rate limit quota per window
//	-w int      rate limit window (seconds)
//	-i int      online check interval (seconds, 0 disables probing)
//	-l string   log level
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-d", "-e", "-p", "-q", "-w", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.UploadEndpoint, "e", cfg.UploadEndpoint, "upload API endpoint")
	fs.StringVar(&cfg.RateLimitPolicy, "p", cfg.RateLimitPolicy, "rate limit policy: serial or window")
	fs.IntVar(&cfg.RateLimitQuota, "q", cfg.RateLimitQuota, "requests allowed per rate limit window")
	window := fs.Int("w", int(cfg.RateLimitWindow.Seconds()), "rate limit window (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RateLimitWindow = time.Duration(*window) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
