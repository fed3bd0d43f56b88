package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gyazemon/internal/common"
)

// PdftoppmRenderer rasterizes PDFs with poppler's pdftoppm. Zoom 1 is 72 dpi.
type PdftoppmRenderer struct {
	Path string
}

func (r *PdftoppmRenderer) Render(ctx context.Context, pdf []byte, zoom float64) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "gyazemon-pdf-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, err
	}

	bin := r.Path
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := strconv.Itoa(int(72*zoom + 0.5))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-png", "-r", dpi, input, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", common.ErrRenderFailed, err, strings.TrimSpace(stderr.String()))
	}

	return readPages(dir)
}

// readPages collects page-N.png files in page order. pdftoppm zero-pads N
// depending on the page count, so the number is parsed instead of sorted
// lexically.
func readPages(dir string) ([][]byte, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}

	type page struct {
		n    int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "page-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([][]byte, 0, len(pages))
	for _, p := range pages {
		b, err := os.ReadFile(p.path)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
