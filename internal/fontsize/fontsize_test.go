package fontsize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recognizeFunc func(ctx context.Context, image []byte) ([]Line, error)

func (f recognizeFunc) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	return f(ctx, image)
}

func TestLineHeight_WeightedByChars(t *testing.T) {
	lines := []Line{
		{Text: "abcd", Confidence: 95, Height: 10},
		{Text: "ab", Confidence: 80, Height: 40},
		{Text: "ignored", Confidence: 79.9, Height: 1000},
	}
	h, ok := LineHeight(lines)
	require.True(t, ok)
	assert.InDelta(t, 20.0, h, 1e-9)
}

func TestLineHeight_NothingConfident(t *testing.T) {
	_, ok := LineHeight([]Line{{Text: "x", Confidence: 10, Height: 5}, {Text: "", Confidence: 99, Height: 5}})
	assert.False(t, ok)
}

func TestZoomFor(t *testing.T) {
	assert.Equal(t, 1.0, ZoomFor(28, true))
	assert.Equal(t, 2.0, ZoomFor(14, true))
	assert.Equal(t, MaxZoom, ZoomFor(2, true))
	assert.Equal(t, MinZoom, ZoomFor(280, true))
	assert.Equal(t, 1.0, ZoomFor(0, false))
	assert.Equal(t, 2.0, Scale(1))
	assert.Equal(t, 0.8, Scale(2.5))
}

func TestCharCount_ComposesCombiningMarks(t *testing.T) {
	assert.Equal(t, 1, CharCount("\u304b\u3099"))
	assert.Equal(t, 3, CharCount("日本語"))
}

func TestCharCount_GraphemeClusters(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"zwj family", "\U0001F468\u200D\U0001F469\u200D\U0001F467", 1},
		{"flag", "\U0001F1EF\U0001F1F5", 1},
		{"skin tone", "\U0001F44D\U0001F3FD", 1},
		{"decomposed e acute", "e\u0301te\u0301", 3},
		{"mixed", "ok \U0001F1EF\U0001F1F5", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CharCount(tt.in))
		})
	}
}

func TestDetector_Zoom(t *testing.T) {
	d := NewDetector(recognizeFunc(func(ctx context.Context, image []byte) ([]Line, error) {
		return []Line{{Text: "hello", Confidence: 91, Height: 14}}, nil
	}), time.Second, logging.Nop{})

	assert.Equal(t, 2.0, d.Zoom(context.Background(), []byte("img")))
}

func TestDetector_FailureFallsBackToOne(t *testing.T) {
	d := NewDetector(recognizeFunc(func(ctx context.Context, image []byte) ([]Line, error) {
		return nil, errors.New("tesseract not installed")
	}), time.Second, nil)

	assert.Equal(t, 1.0, d.Zoom(context.Background(), nil))
}

func TestDetector_RespectsBudget(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	d := NewDetector(recognizeFunc(func(ctx context.Context, image []byte) ([]Line, error) {
		<-block
		return []Line{{Text: "late", Confidence: 99, Height: 7}}, nil
	}), 30*time.Millisecond, nil)

	start := time.Now()
	assert.Equal(t, 1.0, d.Zoom(context.Background(), nil))
	assert.Less(t, time.Since(start), time.Second)
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t300\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t100\t20\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t120\t10\t100\t20\t96\tworld\n" +
	"4\t1\t1\t1\t2\t0\t10\t40\t300\t32\t-1\t\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t100\t32\t40\t???\n" +
	"4\t1\t1\t1\t3\t0\t10\t80\t300\t12\t-1\t\n" +
	"5\t1\t1\t1\t3\t1\t10\t80\t100\t12\t-1\t \n"

func TestParseTSV(t *testing.T) {
	lines, err := ParseTSV(strings.NewReader(sampleTSV))
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, Line{Text: "Hello world", Confidence: 93, Height: 20}, lines[0])
	assert.Equal(t, Line{Text: "???", Confidence: 40, Height: 32}, lines[1])

	h, ok := LineHeight(lines)
	require.True(t, ok)
	assert.Equal(t, 20.0, h)
}
