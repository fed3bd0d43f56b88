package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Input classification. Receive treats both as "nothing to do".
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyFile         = errors.New("empty file")

	// Loader errors.
	ErrRenderFailed = errors.New("render failed")

	// Upload errors.
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrQueueCleared  = errors.New("upload canceled: queue cleared")
	ErrNoAccessToken = errors.New("gyazo access token is not set")

	// Store errors.
	ErrorNotFound = errors.New("not found")
)

// NetworkError wraps transport-level failures (connection errors, timeouts).
// These are the retryable ones.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UploadError is a non-2xx response from the upload API.
type UploadError struct {
	Status     int
	StatusText string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload error. %d %s", e.Status, e.StatusText)
}

// Is reports a 429 response as ErrRateLimited.
func (e *UploadError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// DecodeError means a 2xx response whose body could not be decoded.
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed (status=%d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt may succeed: network failures
// and non-429 error statuses.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var upErr *UploadError
	if errors.As(err, &upErr) {
		return upErr.Status != http.StatusTooManyRequests
	}
	return false
}
