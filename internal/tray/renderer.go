package tray

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dustin/go-humanize"
)

// LogRenderer writes the queue label to the log whenever it changes, and
// each upload as it joins the history.
type LogRenderer struct {
	logger logging.Logger

	last string
	top  Item
}

func NewLogRenderer(logger logging.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(s Snapshot) {
	ctx := context.Background()

	if len(s.Recent) > 0 && s.Recent[0] != r.top {
		r.top = s.Recent[0]
		r.logger.Info(ctx, "uploaded capture", "title", r.top.Title, "permalink", r.top.PermalinkURL)
	}

	label := s.Label()
	if label == r.last {
		return
	}
	r.last = label
	if label == "" {
		r.logger.Debug(ctx, "queue is empty", "recent", len(s.Recent))
		return
	}
	r.logger.Info(ctx, label, "processing", s.Processing)
}

// FileRenderer keeps the latest snapshot as JSON at Path, so that another
// process can show the menu.
type FileRenderer struct {
	Path   string
	Logger logging.Logger
}

func (r *FileRenderer) Render(s Snapshot) {
	if err := WriteStatus(r.Path, s); err != nil && r.Logger != nil {
		r.Logger.Warn(context.Background(), "cannot write status file", "error", err)
	}
}

// WriteStatus replaces the file at path with s.
func WriteStatus(path string, s Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return nil
}

// ReadStatus loads a snapshot written by WriteStatus. A missing file yields
// common.ErrorNotFound.
func ReadStatus(path string) (Snapshot, error) {
	var s Snapshot
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, common.ErrorNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("bad status file: %w", err)
	}
	return s, nil
}

// WriteMenu prints the snapshot as the tray menu would list it.
func WriteMenu(w io.Writer, s Snapshot) error {
	if s.Busy() {
		if _, err := fmt.Fprintf(w, "Processing %d captures\n", s.Processing); err != nil {
			return err
		}
	}
	if label := s.Label(); label != "" {
		if _, err := fmt.Fprintln(w, label); err != nil {
			return err
		}
	}
	if len(s.Recent) == 0 {
		_, err := fmt.Fprintln(w, "No recent uploads.")
		return err
	}
	for _, item := range s.Recent {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", item.Title, item.PermalinkURL, humanize.Time(item.UploadedAt)); err != nil {
			return err
		}
	}
	return nil
}
