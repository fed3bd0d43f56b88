package pipeline

import (
	"context"

	"github.com/dmitrijs2005/gyazemon/internal/gyazo"
)

type State int

const (
	StatePending State = iota
	StateLoading
	StateUploading
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateUploading:
		return "uploading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadyFile is a file that settled, is non-empty and has been read.
type ReadyFile struct {
	Path         string
	SizeBytes    uint64
	ModifiedAtMs float64
	ContentHash  string
	Bytes        []byte
}

// Job is one source file on its way to the upload API. Payloads holds more
// than one image only for multi-page PDFs.
type Job struct {
	ID              string
	SourcePath      string
	Payloads        [][]byte
	CreatedAtMs     float64
	WritesClipboard bool
	OpensNewTab     bool
	State           State
}

// Request asks the pipeline to process one path.
type Request struct {
	Path            string
	WritesClipboard bool
	OpensNewTab     bool
	// CheckUploaded skips files whose content was uploaded before.
	CheckUploaded bool
}

// Result describes a successful job by its first payload.
type Result struct {
	PermalinkURL string
	Title        string
	Response     *gyazo.UploadResponse
}

// Outcome is the per-path result of UploadOnce. Both fields are nil when
// the path was skipped.
type Outcome struct {
	Path   string
	Result *Result
	Err    error
}

type Uploader interface {
	Upload(ctx context.Context, r gyazo.UploadRequest) (*gyazo.UploadResponse, error)
}

type UploadedSet interface {
	Has(ctx context.Context, hash string) (bool, error)
	Mark(ctx context.Context, hash string) error
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Loader interface {
	Load(ctx context.Context, ext string, data []byte) ([][]byte, error)
}

type ZoomDetector interface {
	Zoom(ctx context.Context, image []byte) float64
}

type Queue interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	Clear(gen uint64) (int, bool)
}

type OnlineWaiter interface {
	WaitOnline(ctx context.Context) error
}

type History interface {
	JobStarted()
	JobFinished()
	Push(title, permalinkURL string)
}
