// Package loader turns the bytes of a ready file into upload payloads:
// raster images pass through unchanged, PDFs are rasterized page by page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
)

const (
	DefaultZoom          = 3.0
	DefaultRenderTimeout = 2 * time.Minute
)

var rasterFormats = map[string]struct{}{
	"gif":  {},
	"jpeg": {},
	"jpg":  {},
	"png":  {},
	"webp": {},
}

// Renderer rasterizes every page of a PDF at zoom and returns the page
// images in page order.
type Renderer interface {
	Render(ctx context.Context, pdf []byte, zoom float64) ([][]byte, error)
}

type Loader struct {
	renderer Renderer
	zoom     float64
	timeout  time.Duration
}

type Option func(*Loader)

func WithZoom(zoom float64) Option {
	return func(l *Loader) { l.zoom = zoom }
}

func WithRenderTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// New returns a Loader. A nil renderer makes every PDF fail with
// common.ErrRenderFailed.
func New(renderer Renderer, opts ...Option) *Loader {
	l := &Loader{
		renderer: renderer,
		zoom:     DefaultZoom,
		timeout:  DefaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether ext (with or without the leading dot, any case)
// is a format the loader handles.
func Supported(ext string) bool {
	ext = normalize(ext)
	if ext == "pdf" {
		return true
	}
	_, ok := rasterFormats[ext]
	return ok
}

// Load returns the payloads for one file.
func (l *Loader) Load(ctx context.Context, ext string, data []byte) ([][]byte, error) {
	ext = normalize(ext)

	if _, ok := rasterFormats[ext]; ok {
		return [][]byte{data}, nil
	}
	if ext != "pdf" {
		return nil, fmt.Errorf("%q: %w", ext, common.ErrUnsupportedFormat)
	}
	if l.renderer == nil {
		return nil, fmt.Errorf("no pdf renderer configured: %w", common.ErrRenderFailed)
	}

	rctx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	pages, err := l.renderer.Render(rctx, data, l.zoom)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, common.ErrRenderFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrRenderFailed, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", common.ErrRenderFailed)
	}
	return pages, nil
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
