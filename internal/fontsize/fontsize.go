// Package fontsize estimates the text size in a screenshot and derives the
// zoom hint sent along with an upload. Detection is best-effort and bounded by
// a time budget; any failure yields zoom 1.
package fontsize

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

const (
	// BasisFontSize is the line height, in pixels, that maps to zoom 1.
	BasisFontSize = 28.0
	MinZoom       = 0.4
	MaxZoom       = 2.5
	MinConfidence = 80.0

	DefaultTimeout = 5 * time.Second
)

// Line is one recognized text line.
type Line struct {
	Text       string
	Confidence float64
	Height     float64
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Line, error)
}

type Detector struct {
	recognizer Recognizer
	timeout    time.Duration
	logger     logging.Logger
}

func NewDetector(r Recognizer, timeout time.Duration, logger logging.Logger) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Detector{recognizer: r, timeout: timeout, logger: logger}
}

// Zoom returns the zoom hint for image. It never blocks longer than the
// detector's budget.
func (d *Detector) Zoom(ctx context.Context, image []byte) float64 {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		lines []Line
		err   error
	}
	done := make(chan result, 1)
	go func() {
		lines, err := d.recognizer.Recognize(ctx, image)
		done <- result{lines, err}
	}()

	select {
	case <-ctx.Done():
		d.logger.Debug(ctx, "font size detection timed out")
		return 1
	case r := <-done:
		if r.err != nil {
			d.logger.Debug(ctx, "font size detection failed", "error", r.err)
			return 1
		}
		height, ok := LineHeight(r.lines)
		zoom := ZoomFor(height, ok)
		d.logger.Debug(ctx, "font size detected", "height", height, "zoom", zoom)
		return zoom
	}
}

// LineHeight averages the height of confident lines weighted by their
// character count. ok is false when no confident characters were found.
func LineHeight(lines []Line) (height float64, ok bool) {
	var chars, sum float64
	for _, l := range lines {
		if l.Confidence < MinConfidence {
			continue
		}
		n := float64(CharCount(l.Text))
		chars += n
		sum += l.Height * n
	}
	if chars == 0 {
		return 0, false
	}
	return sum / chars, true
}

// ZoomFor maps a detected line height to a zoom in [MinZoom, MaxZoom].
func ZoomFor(height float64, ok bool) float64 {
	if !ok || height <= 0 {
		return 1
	}
	return min(max(BasisFontSize/height, MinZoom), MaxZoom)
}

// Scale is the display scale sent with a zoom: 2 for a retina capture at
// zoom 1.
func Scale(zoom float64) float64 {
	return 2 / zoom
}

// CharCount counts user-perceived characters: grapheme clusters of the NFC
// form, so a kana with a combining voicing mark, a flag or a ZWJ emoji
// sequence each count once.
func CharCount(s string) int {
	return uniseg.GraphemeClusterCount(norm.NFC.String(s))
}
