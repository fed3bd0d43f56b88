package fontsize

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractRecognizer runs the tesseract CLI with TSV output.
type TesseractRecognizer struct {
	Path     string
	Language string
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	bin := t.Path
	if bin == "" {
		bin = "tesseract"
	}
	lang := t.Language
	if lang == "" {
		lang = "jpn"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", lang, "tsv")
	cmd.Stdin = bytes.NewReader(image)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(&stdout)
}

type lineKey struct {
	page, block, par, line int
}

type lineAcc struct {
	height   float64
	words    []string
	confSum  float64
	confSeen int
}

// ParseTSV folds tesseract's TSV rows into lines. The height comes from the
// line row (level 4); the text and the mean confidence from its word rows
// (level 5).
func ParseTSV(r io.Reader) ([]Line, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var order []lineKey
	acc := map[lineKey]*lineAcc{}
	get := func(k lineKey) *lineAcc {
		a, ok := acc[k]
		if !ok {
			a = &lineAcc{}
			acc[k] = a
			order = append(order, k)
		}
		return a
	}

	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 11 {
			continue
		}
		nums := make([]int, 10)
		bad := false
		for i := 0; i < 10; i++ {
			n, err := strconv.Atoi(cols[i])
			if err != nil {
				bad = true
				break
			}
			nums[i] = n
		}
		if bad {
			continue
		}
		level := nums[0]
		k := lineKey{page: nums[1], block: nums[2], par: nums[3], line: nums[4]}

		switch level {
		case 4:
			get(k).height = float64(nums[9])
		case 5:
			text := ""
			if len(cols) > 11 {
				text = strings.TrimSpace(cols[11])
			}
			conf, err := strconv.ParseFloat(cols[10], 64)
			if err != nil || conf < 0 || text == "" {
				continue
			}
			a := get(k)
			a.words = append(a.words, text)
			a.confSum += conf
			a.confSeen++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(order))
	for _, k := range order {
		a := acc[k]
		if a.confSeen == 0 {
			continue
		}
		lines = append(lines, Line{
			Text:       strings.Join(a.words, " "),
			Confidence: a.confSum / float64(a.confSeen),
			Height:     a.height,
		})
	}
	return lines, nil
}
