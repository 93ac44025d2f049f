package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/retry"
)

var (
	// ErrNotFound means the profile does not exist. It is always permanent.
	ErrNotFound = errors.New("profile not found")
	// ErrBlocked means the site refused the request as automated traffic.
	ErrBlocked = errors.New("request blocked by bot detection")
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	// Body holds the start of the response body, some APIs explain the
	// failure there.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case 999:
		return ErrBlocked
	}
	return nil
}

// Client wraps net/http with browser-like headers and maps HTTP statuses onto
// transient and permanent errors.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient builds a Client whose requests time out after timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches url and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	return c.do(req)
}

// PostJSON sends payload as JSON and returns the body of a 2xx response.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, header http.Header) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to encode payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another try.
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	logrus.Debugf("%s %s returned HTTP %d", req.Method, req.URL, resp.StatusCode)
	return nil, classify(&StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Code:   resp.StatusCode,
		Body:   truncate(body, 512),
	})
}

// classify marks client errors permanent, except timeouts and throttling.
// Server errors and bot blocks stay transient.
func classify(se *StatusError) error {
	switch {
	case se.Code == http.StatusRequestTimeout, se.Code == http.StatusTooManyRequests:
		return se
	case se.Code == 999:
		return se
	case se.Code >= 500:
		return se
	case se.Code >= 400:
		return retry.Permanent(se)
	}
	// Unexpected 1xx/3xx that the transport did not follow.
	return se
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
