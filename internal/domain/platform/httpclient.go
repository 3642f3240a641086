package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRetries     = 3
	defaultBackoff     = time.Second
)

// HTTPClientOption applies a configuration option to the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithRetries sets the number of attempts.
func WithRetries(n int) HTTPClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the first retry delay; each later delay doubles.
func WithBackoff(base time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if base >= 0 {
			c.backoff = base
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.headers.Set(key, value)
	}
}

// HTTPClient is a JSON client that retries failed requests with exponential
// backoff. Any 2xx status is a success.
type HTTPClient struct {
	client  *http.Client
	retries int
	backoff time.Duration
	headers http.Header
}

// NewHTTPClient creates a client with a 30s timeout and three attempts.
func NewHTTPClient(opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
		headers: http.Header{},
	}
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends body as JSON and decodes a JSON reply into out when out is not nil.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	var lastErr error
	delay := c.backoff
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
		data, err := c.once(ctx, method, url, payload)
		if err == nil {
			if out != nil && len(data) > 0 {
				if err := json.Unmarshal(data, out); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("%s %s after %d attempts: %w", method, url, c.retries, lastErr)
}

func (c *HTTPClient) once(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return data, nil
}
