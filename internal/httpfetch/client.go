package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/brianvoe/gofakeit/v6"
)

const (
	maxRedirects    = 10
	defaultTimeout  = 60 * time.Second
	defaultMaxBytes = 200 << 20
)

var errBodyTooLarge = errors.New("response body exceeds size limit")

// Options configures a Client.
type Options struct {
	Timeout         time.Duration
	MaxBytes        int64
	RandomUserAgent bool // send a fresh browser User-Agent on every request
}

// Client downloads whole documents over HTTP, following redirects.
type Client struct {
	client   *http.Client
	maxBytes int64
	faker    *gofakeit.Faker
}

// New creates a Client. Zero option values fall back to defaults.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	c := &Client{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBytes: maxBytes,
	}
	if opts.RandomUserAgent {
		c.faker = gofakeit.New(0)
	}
	return c
}

// Fetch GETs url and returns the full body. Transport failures, non-2xx
// responses and oversized bodies are reported as *models.FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: err}
	}
	if c.faker != nil {
		req.Header.Set("User-Agent", c.faker.UserAgent())
	}
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &models.FetchError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &models.FetchError{URL: url, Err: errBodyTooLarge}
	}
	return body, nil
}
