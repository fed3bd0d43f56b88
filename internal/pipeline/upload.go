package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
	"github.com/dmitrijs2005/gyazemon/internal/fontsize"
	"github.com/dmitrijs2005/gyazemon/internal/gyazo"
	"github.com/dmitrijs2005/gyazemon/internal/logging"
	"github.com/dmitrijs2005/gyazemon/internal/queue"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// uploadAll uploads every payload of job concurrently and waits for all of
// them. The first error wins; the other payloads still run to completion.
func (p *Pipeline) uploadAll(ctx context.Context, logger logging.Logger, job *Job, token string) ([]*gyazo.UploadResponse, error) {
	responses := make([]*gyazo.UploadResponse, len(job.Payloads))

	var g errgroup.Group
	for i := range job.Payloads {
		i := i
		g.Go(func() error {
			resp, err := p.uploadPayload(ctx, logger, job, i, token)
			responses[i] = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (p *Pipeline) uploadPayload(ctx context.Context, logger logging.Logger, job *Job, i int, token string) (*gyazo.UploadResponse, error) {
	n := len(job.Payloads)
	logger = logger.With("payload", fmt.Sprintf("%d/%d", i+1, n))
	logger.Info(ctx, "uploading")

	title := Title(job.SourcePath, i, n)
	req := gyazo.UploadRequest{
		AccessToken: token,
		Image:       job.Payloads[i],
		RefererURL:  RefererURL(p.opts.User, p.opts.Host, job.SourcePath),
		App:         common.AppName,
		Title:       title,
		Desc:        title,
		CreatedAt:   CreatedAt(job.CreatedAtMs, i),
	}
	if p.d.Detector != nil {
		zoom := p.d.Detector.Zoom(ctx, job.Payloads[i])
		scale := fontsize.Scale(zoom)
		req.Scale = &scale
		logger.Debug(ctx, "zoom", "zoom", zoom, "scale", scale)
	}

	// Attempts are retried back to back; each one queues again.
	backoff := retry.WithMaxRetries(uint64(p.opts.Attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))

	attempt := 0
	var resp *gyazo.UploadResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var gen uint64
		err := p.d.Queue.Do(ctx, func(ctx context.Context) error {
			gen, _ = queue.Generation(ctx)
			if err := p.d.Network.WaitOnline(ctx); err != nil {
				return err
			}
			r, err := p.d.Uploader.Upload(ctx, req)
			resp = r
			return err
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, common.ErrRateLimited):
			p.rateLimited(ctx, logger, gen)
			return err
		case common.IsRetryable(err):
			logger.Warn(ctx, "upload attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "uploaded payload", "attempts", attempt)
	return resp, nil
}

// rateLimited cancels every upload that has not started yet, process-wide,
// and tells the user once. Further 429s from requests admitted in the same
// generation find it already cleared and stay silent.
func (p *Pipeline) rateLimited(ctx context.Context, logger logging.Logger, gen uint64) {
	canceled, first := p.d.Queue.Clear(gen)
	if !first {
		logger.Debug(ctx, "rate limit already handled")
		return
	}
	logger.Warn(ctx, "rate limit exceeded", "canceled", canceled)
	if err := p.d.Notifier.Notify(ctx, RateLimitedTitle, RateLimitedBody); err != nil {
		logger.Warn(ctx, "cannot notify", "error", err)
	}
}

// Title is the basename for single payloads and "i/n basename" otherwise.
func Title(path string, i, n int) string {
	base := filepath.Base(path)
	if n < 2 {
		return base
	}
	return fmt.Sprintf("%d/%d %s", i+1, n, base)
}

// CreatedAt is the payload timestamp in Unix seconds. Later pages get
// earlier timestamps so the service lists them in page order.
func CreatedAt(modifiedAtMs float64, i int) float64 {
	return modifiedAtMs/1000 - float64(i)
}

// RefererURL builds http://user@host/<path>. The URL only labels where the
// capture came from and is never requested.
func RefererURL(user, host, path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme: "http",
		Host:   host,
		Path:   p,
	}
	if user != "" {
		u.User = url.User(user)
	}
	return u.String()
}
