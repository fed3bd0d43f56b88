// Package pipeline turns ready files into uploads: it deduplicates by content,
// loads the payloads, pushes every payload through the shared queue with
// retries and reacts to rate limiting. A job succeeds only when all of its
// payloads were uploaded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/cryptox"
	"github.com/dmitrijs2005/gyazemon/internal/desktop"
	"github.com/dmitrijs2005/gyazemon/internal/filex"
	"github.com/dmitrijs2005/gyazemon/internal/loader"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dmitrijs2005/gyazemon/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	FailureTitle     = "Failed to upload to Gyazo."
	FailureBody      = "%s\nPlease check the log."
	RateLimitedTitle = "Canceled the upload processes to Gyazo."
	RateLimitedBody  = "Gyazo API rate limit exceeded. Please try again later."
)

type Deps struct {
	Uploader Uploader
	Uploaded UploadedSet
	Tokens   TokenSource
	Loader   Loader
	Queue    Queue

	// Optional collaborators.
	Detector  ZoomDetector
	Network   OnlineWaiter
	History   History
	Notifier  desktop.Notifier
	Clipboard desktop.Clipboard
	Opener    desktop.Opener
	Logger    logging.Logger
}

type Options struct {
	// Attempts per payload, at least 1.
	Attempts int
	// User and Host go into the referer URL. Empty means the current
	// OS user and hostname.
	User string
	Host string
}

type Pipeline struct {
	d    Deps
	opts Options

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(d Deps, opts Options) *Pipeline {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.User == "" {
		if u, err := user.Current(); err == nil {
			opts.User = u.Username
		}
	}
	if opts.Host == "" {
		opts.Host, _ = os.Hostname()
	}
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Network == nil {
		d.Network = alwaysOnline{}
	}
	if d.History == nil {
		d.History = nopHistory{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	return &Pipeline{d: d, opts: opts, inflight: make(map[string]struct{})}
}

// Receive processes one path. It returns (nil, nil) when the path is
// skipped: unsupported extension, empty or vanished file, or content that
// was already uploaded (with CheckUploaded) or is being uploaded right now.
func (p *Pipeline) Receive(ctx context.Context, req Request) (*Result, error) {
	ext := filex.Ext(req.Path)
	if !loader.Supported(ext) {
		return nil, nil
	}

	file, err := readFile(req.Path)
	if err != nil {
		if errors.Is(err, common.ErrEmptyFile) || errors.Is(err, common.ErrUnsupportedFormat) || errors.Is(err, fs.ErrNotExist) {
			p.d.Logger.Debug(ctx, "skipping file", "path", req.Path, "reason", err)
			return nil, nil
		}
		p.d.Logger.Error(ctx, "cannot read file", "path", req.Path, "error", err)
		return nil, err
	}
	logger := p.d.Logger.With("path", req.Path)
	logger.Info(ctx, "file id", "hash", file.ContentHash, "size", humanize.IBytes(file.SizeBytes))

	if req.CheckUploaded {
		// Claim first so no other Receive can upload this content between
		// the lookup below and the Mark after a successful upload.
		if !p.claim(file.ContentHash) {
			logger.Debug(ctx, "same content is already being uploaded")
			return nil, nil
		}
		defer p.release(file.ContentHash)

		uploaded, err := p.d.Uploaded.Has(ctx, file.ContentHash)
		if err != nil {
			logger.Error(ctx, "cannot check uploaded set", "error", err)
			return nil, err
		}
		if uploaded {
			logger.Debug(ctx, "already uploaded")
			return nil, nil
		}
	}

	p.d.History.JobStarted()
	defer p.d.History.JobFinished()

	job := &Job{
		ID:              uuid.NewString(),
		SourcePath:      file.Path,
		CreatedAtMs:     file.ModifiedAtMs,
		WritesClipboard: req.WritesClipboard,
		OpensNewTab:     req.OpensNewTab,
		State:           StatePending,
	}
	logger = logger.With("job", job.ID)

	res, err := p.run(ctx, logger, job, ext, file)
	if err != nil {
		p.transition(ctx, logger, job, StateFailed)
		p.reportFailure(ctx, logger, job, err)
		return nil, err
	}
	p.transition(ctx, logger, job, StateSucceeded)

	if err := p.d.Uploaded.Mark(ctx, file.ContentHash); err != nil {
		logger.Error(ctx, "cannot mark content as uploaded", "error", err)
	}
	return res, nil
}

// UploadOnce uploads paths without consulting the uploaded set and without
// clipboard or browser actions. Paths are processed concurrently.
func (p *Pipeline) UploadOnce(ctx context.Context, paths []string) []Outcome {
	out := make([]Outcome, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := p.Receive(ctx, Request{Path: path})
			out[i] = Outcome{Path: path, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) run(ctx context.Context, logger logging.Logger, job *Job, ext string, file *ReadyFile) (*Result, error) {
	p.transition(ctx, logger, job, StateLoading)
	payloads, err := p.d.Loader.Load(ctx, ext, file.Bytes)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file.Path, err)
	}
	job.Payloads = payloads

	token, err := p.d.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, common.ErrNoAccessToken
	}

	p.transition(ctx, logger, job, StateUploading)
	responses, err := p.uploadAll(ctx, logger, job, token)
	if err != nil {
		return nil, err
	}

	first := responses[0]
	res := &Result{
		PermalinkURL: first.PermalinkURL,
		Title:        filepath.Base(job.SourcePath),
		Response:     first,
	}
	logger.Info(ctx, "uploaded", "permalink", res.PermalinkURL, "payloads", len(job.Payloads))

	p.d.History.Push(res.Title, res.PermalinkURL)
	if job.WritesClipboard && p.d.Clipboard != nil {
		if err := p.d.Clipboard.WriteText(ctx, res.PermalinkURL); err != nil {
			logger.Warn(ctx, "cannot write clipboard", "error", err)
		}
	}
	if job.OpensNewTab && p.d.Opener != nil {
		if err := p.d.Opener.OpenURL(ctx, res.PermalinkURL); err != nil {
			logger.Warn(ctx, "cannot open browser", "error", err)
		}
	}
	return res, nil
}

func (p *Pipeline) transition(ctx context.Context, logger logging.Logger, job *Job, to State) {
	logger.Debug(ctx, "job state", "from", job.State, "to", to)
	job.State = to
}

// reportFailure raises one notification per failed job. Jobs that failed
// because of rate limiting are covered by the rate-limit notification.
func (p *Pipeline) reportFailure(ctx context.Context, logger logging.Logger, job *Job, err error) {
	if errors.Is(err, common.ErrRateLimited) || queue.IsCleared(err) {
		logger.Warn(ctx, "upload canceled", "error", err)
		return
	}
	if ctx.Err() != nil {
		logger.Debug(ctx, "upload interrupted", "error", err)
		return
	}
	logger.Error(ctx, "upload failed", "error", err)
	if nerr := p.d.Notifier.Notify(ctx, FailureTitle, fmt.Sprintf(FailureBody, job.SourcePath)); nerr != nil {
		logger.Warn(ctx, "cannot notify", "error", nerr)
	}
}

func (p *Pipeline) claim(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[hash]; ok {
		return false
	}
	p.inflight[hash] = struct{}{}
	return true
}

func (p *Pipeline) release(hash string) {
	p.mu.Lock()
	delete(p.inflight, hash)
	p.mu.Unlock()
}

func readFile(path string) (*ReadyFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, common.ErrUnsupportedFormat)
	}
	if info.Size() == 0 {
		return nil, common.ErrEmptyFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, common.ErrEmptyFile
	}
	return &ReadyFile{
		Path:         path,
		SizeBytes:    uint64(len(b)),
		ModifiedAtMs: float64(info.ModTime().UnixNano()) / 1e6,
		ContentHash:  cryptox.ContentHash(b),
		Bytes:        b,
	}, nil
}

type alwaysOnline struct{}

func (alwaysOnline) WaitOnline(context.Context) error { return nil }

type nopHistory struct{}

func (nopHistory) JobStarted() {}

func (nopHistory) JobFinished() {}

func (nopHistory) Push(string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }
