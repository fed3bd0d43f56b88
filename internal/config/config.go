package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/filex"
)

const (
	PolicySerial = "serial"
	PolicyWindow = "window"
)

type Config struct {
	DataDir        string
	UploadEndpoint string

	RateLimitPolicy string
	RateLimitQuota  int
	RateLimitWindow time.Duration

	UploadAttempts      int
	RequestTimeout      time.Duration
	DebounceWindow      time.Duration
	OnlineCheckInterval time.Duration

	RenderTimeout time.Duration
	PDFZoom       float64
	PdftoppmPath  string

	FontDetection        bool
	FontDetectionTimeout time.Duration
	TesseractPath        string
	OCRLanguage          string

	AwaitWriteFinish bool
	LogLevel         string
}

// LoadDefaults populates c with the built-in defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = filex.DefaultDataDir()
	c.UploadEndpoint = "https://upload.gyazo.com/api/upload"

	c.RateLimitPolicy = PolicySerial
	c.RateLimitQuota = 86
	c.RateLimitWindow = 10 * time.Minute

	c.UploadAttempts = 3
	c.RequestTimeout = 3 * time.Minute
	c.DebounceWindow = 500 * time.Millisecond
	c.OnlineCheckInterval = 5 * time.Second

	c.RenderTimeout = 2 * time.Minute
	c.PDFZoom = 3
	c.PdftoppmPath = "pdftoppm"

	c.FontDetection = false
	c.FontDetectionTimeout = 5 * time.Second
	c.TesseractPath = "tesseract"
	c.OCRLanguage = "jpn"

	c.AwaitWriteFinish = true
	c.LogLevel = "info"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.RateLimitPolicy {
	case PolicySerial:
	case PolicyWindow:
		if c.RateLimitQuota <= 0 || c.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit policy %q needs a positive quota and window", c.RateLimitPolicy)
		}
	default:
		return fmt.Errorf("unknown rate limit policy %q", c.RateLimitPolicy)
	}
	if c.UploadAttempts < 1 {
		return fmt.Errorf("upload_attempts must be at least 1, got %d", c.UploadAttempts)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PDFZoom <= 0 {
		return fmt.Errorf("pdf_zoom must be positive, got %v", c.PDFZoom)
	}
	return nil
}

// Concurrency is the number of uploads the queue runs at once for the
// configured policy.
func (c *Config) Concurrency() int {
	if c.RateLimitPolicy == PolicyWindow {
		return 2
	}
	return 1
}

// LoadConfig builds a Config from defaults, the config file and os.Args.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
