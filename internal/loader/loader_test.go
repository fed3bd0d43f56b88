package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renderFunc func(ctx context.Context, pdf []byte, zoom float64) ([][]byte, error)

func (f renderFunc) Render(ctx context.Context, pdf []byte, zoom float64) ([][]byte, error) {
	return f(ctx, pdf, zoom)
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{"gif", ".jpeg", "jpg", ".PNG", "WebP", "pdf", ".Pdf"} {
		assert.True(t, Supported(ext), ext)
	}
	for _, ext := range []string{"", "txt", ".heic", "tiff", ".png.tmp"} {
		assert.False(t, Supported(ext), ext)
	}
}

func TestLoad_RasterPassThrough(t *testing.T) {
	l := New(nil)
	data := []byte("\x89PNG...")

	for _, ext := range []string{"png", ".jpg", "JPEG", "gif", "webp"} {
		got, err := l.Load(context.Background(), ext, data)
		require.NoError(t, err, ext)
		require.Len(t, got, 1)
		assert.Equal(t, data, got[0])
	}
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := New(nil).Load(context.Background(), "txt", []byte("x"))
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestLoad_PDFDelegatesWithZoom(t *testing.T) {
	var gotZoom float64
	r := renderFunc(func(ctx context.Context, pdf []byte, zoom float64) ([][]byte, error) {
		gotZoom = zoom
		return [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}, nil
	})

	pages, err := New(r).Load(context.Background(), ".pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}, pages)
	assert.Equal(t, 3.0, gotZoom)
}

func TestLoad_PDFFailures(t *testing.T) {
	tests := []struct {
		name     string
		renderer Renderer
		opts     []Option
	}{
		{name: "no renderer"},
		{
			name: "renderer error",
			renderer: renderFunc(func(context.Context, []byte, float64) ([][]byte, error) {
				return nil, errors.New("corrupt xref")
			}),
		},
		{
			name: "zero pages",
			renderer: renderFunc(func(context.Context, []byte, float64) ([][]byte, error) {
				return nil, nil
			}),
		},
		{
			name: "never completes",
			renderer: renderFunc(func(ctx context.Context, _ []byte, _ float64) ([][]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			opts: []Option{WithRenderTimeout(20 * time.Millisecond)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.renderer, tt.opts...).Load(context.Background(), "pdf", []byte("%PDF"))
			require.ErrorIs(t, err, common.ErrRenderFailed)
		})
	}
}

func TestLoad_PDFCallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := renderFunc(func(ctx context.Context, _ []byte, _ float64) ([][]byte, error) {
		return nil, ctx.Err()
	})

	_, err := New(r).Load(ctx, "pdf", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrRenderFailed)
}

func TestReadPages_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"page-10.png": "ten",
		"page-02.png": "two",
		"page-1.png":  "one",
		"input.pdf":   "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	pages, err := readPages(dir)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two"), []byte("ten")}, pages)
}

func TestPdftoppmRenderer_MissingBinary(t *testing.T) {
	r := &PdftoppmRenderer{Path: filepath.Join(t.TempDir(), "no-such-pdftoppm")}
	_, err := r.Render(context.Background(), []byte("%PDF"), 1)
	require.ErrorIs(t, err, common.ErrRenderFailed)
}
