// Package gyazo is a client for the Gyazo upload API.
package gyazo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/common"
)

const (
	DefaultEndpoint = "https://upload.gyazo.com/api/upload"
	DefaultTimeout  = 3 * time.Minute

	// The API only needs a file name on the image part; the real name travels
	// in the title field.
	imageFileName = "dummy.png"
)

// UploadRequest carries the form fields of one upload.
type UploadRequest struct {
	AccessToken string
	Image       []byte
	RefererURL  string
	App         string
	Title       string
	Desc        string
	// CreatedAt is Unix seconds, possibly fractional.
	CreatedAt float64
	// Scale is sent only when set.
	Scale *float64
}

type UploadResponse struct {
	PermalinkURL string `json:"permalink_url"`
	URL          string `json:"url"`
	ImageID      string `json:"image_id"`
	Type         string `json:"type"`
}

type Client struct {
	HTTP     *http.Client
	Endpoint string
	Timeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.HTTP = c }
}

func WithEndpoint(endpoint string) Option {
	return func(cl *Client) { cl.Endpoint = endpoint }
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.Timeout = d }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		HTTP:     &http.Client{},
		Endpoint: DefaultEndpoint,
		Timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{}
	}
	return c
}

// Upload posts one image. Transport failures and timeouts come back as
// *common.NetworkError, non-2xx statuses as *common.UploadError, and an
// unreadable 2xx body as *common.DecodeError.
func (c *Client) Upload(ctx context.Context, r UploadRequest) (*UploadResponse, error) {
	body, contentType, err := encodeForm(r)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &common.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &common.UploadError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, &common.NetworkError{Err: err}
		}
		return nil, &common.DecodeError{Status: resp.StatusCode, Err: err}
	}
	if out.PermalinkURL == "" {
		return nil, &common.DecodeError{Status: resp.StatusCode, Err: errors.New("response has no permalink_url")}
	}
	return &out, nil
}

func encodeForm(r UploadRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{common.AccessTokenFieldName, r.AccessToken},
		{"referer_url", r.RefererURL},
		{"app", r.App},
		{"title", r.Title},
		{"desc", r.Desc},
		{"created_at", FormatNumber(r.CreatedAt)},
	}
	if r.Scale != nil {
		fields = append(fields, struct{ name, value string }{"scale", FormatNumber(*r.Scale)})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	part, err := w.CreateFormFile("imagedata", imageFileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(r.Image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// FormatNumber renders v in its shortest decimal form ("1700000000.5", "2").
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
