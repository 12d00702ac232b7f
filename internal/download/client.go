package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

const defaultTimeout = 60 * time.Second

// Config controls the binary download client.
type Config struct {
	Timeout time.Duration
	Headers http.Header
}

// Client performs single-shot binary downloads. Failures are not retried.
type Client struct {
	http *resty.Client
}

// New builds a Client on a fresh resty client.
func New(cfg Config) *Client {
	return NewWithClient(resty.New(), cfg)
}

// NewWithClient configures rc for downloads (primarily for testing).
func NewWithClient(rc *resty.Client, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc.SetTimeout(timeout).SetRetryCount(0)
	for key, values := range cfg.Headers {
		if len(values) > 0 {
			rc.SetHeader(key, values[0])
		}
	}
	return &Client{http: rc}
}

// Download fetches url and returns the body. A transport error or non-2xx
// status yields report.ErrDownloadFailed.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", report.ErrDownloadFailed, url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: get %s: status %d", report.ErrDownloadFailed, url, resp.StatusCode())
	}
	return resp.Body(), nil
}
