// Package rest is the typed client for the support backend's
// request/response API. The backend is an external collaborator: this
// client consumes its surface as-is and owns no server semantics.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("rest: not found")
	ErrUnauthorized = errors.New("rest: unauthorized")
)

// APIError carries a non-2xx response that is neither not-found nor an
// authorization failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rest: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("rest: unexpected status %d", e.StatusCode)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUnauthorizedHook installs a callback fired at most once, on the first
// authorization failure. The admin console uses it as its login redirect;
// the guard stops overlapping requests from firing it repeatedly.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	onUnauthorized   func()
	unauthorizedOnce sync.Once
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		// The admin session lives in a cookie, so the default client
		// carries a jar.
		jar, _ := cookiejar.New(nil)
		c.http = &http.Client{Timeout: 15 * time.Second, Jar: jar}
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	switch {
	case res.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		if c.onUnauthorized != nil {
			c.unauthorizedOnce.Do(c.onUnauthorized)
		}
		return ErrUnauthorized
	case res.StatusCode < 200 || res.StatusCode > 299:
		return &APIError{StatusCode: res.StatusCode, Message: errorMessage(res.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s %s response: %w", method, path, err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}

func pathEscape(segment string) string {
	return url.PathEscape(segment)
}
