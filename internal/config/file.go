package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/flagx"
	"github.com/dmitrijs2005/gyazemon/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the config file. Absent keys keep the
// value from the previous source.
type FileConfig struct {
	DataDir        *string `json:"data_dir" yaml:"data_dir"`
	UploadEndpoint *string `json:"upload_endpoint" yaml:"upload_endpoint"`

	RateLimitPolicy *string         `json:"rate_limit_policy" yaml:"rate_limit_policy"`
	RateLimitQuota  *int            `json:"rate_limit_quota" yaml:"rate_limit_quota"`
	RateLimitWindow *timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`

	UploadAttempts      *int            `json:"upload_attempts" yaml:"upload_attempts"`
	RequestTimeout      *timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	DebounceWindow      *timex.Duration `json:"debounce_window" yaml:"debounce_window"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`

	RenderTimeout *timex.Duration `json:"render_timeout" yaml:"render_timeout"`
	PDFZoom       *float64        `json:"pdf_zoom" yaml:"pdf_zoom"`
	PdftoppmPath  *string         `json:"pdftoppm_path" yaml:"pdftoppm_path"`

	FontDetection        *bool           `json:"font_detection" yaml:"font_detection"`
	FontDetectionTimeout *timex.Duration `json:"font_detection_timeout" yaml:"font_detection_timeout"`
	TesseractPath        *string         `json:"tesseract_path" yaml:"tesseract_path"`
	OCRLanguage          *string         `json:"ocr_language" yaml:"ocr_language"`

	AwaitWriteFinish *bool   `json:"await_write_finish" yaml:"await_write_finish"`
	LogLevel         *string `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file named by -c/-config. Files ending in
// .yaml or .yml are decoded as YAML, anything else as JSON. Read or decode
// errors panic.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.UploadEndpoint, fc.UploadEndpoint)
	setString(&cfg.RateLimitPolicy, fc.RateLimitPolicy)
	setInt(&cfg.RateLimitQuota, fc.RateLimitQuota)
	setDuration(&cfg.RateLimitWindow, fc.RateLimitWindow)
	setInt(&cfg.UploadAttempts, fc.UploadAttempts)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setDuration(&cfg.DebounceWindow, fc.DebounceWindow)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.RenderTimeout, fc.RenderTimeout)
	if fc.PDFZoom != nil {
		cfg.PDFZoom = *fc.PDFZoom
	}
	setString(&cfg.PdftoppmPath, fc.PdftoppmPath)
	setBool(&cfg.FontDetection, fc.FontDetection)
	setDuration(&cfg.FontDetectionTimeout, fc.FontDetectionTimeout)
	setString(&cfg.TesseractPath, fc.TesseractPath)
	setString(&cfg.OCRLanguage, fc.OCRLanguage)
	setBool(&cfg.AwaitWriteFinish, fc.AwaitWriteFinish)
	setString(&cfg.LogLevel, fc.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
