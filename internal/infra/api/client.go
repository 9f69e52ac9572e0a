// Package api is the HTTP client for the streaming server's REST and
// server-sent-event endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries for transient failures.
	DefaultMaxRetries = 3

	// DefaultRetryWait is the first backoff step; each retry doubles it.
	DefaultRetryWait = 500 * time.Millisecond

	// maxRetryWait caps the backoff.
	maxRetryWait = 30 * time.Second

	// SessionHeader carries the client session id on every request.
	SessionHeader = "X-Client-Session"

	userAgent = "StellarStreamClient"
)

var (
	// ErrNotFound is returned for unknown tracks.
	ErrNotFound = errors.New("not found")

	// ErrTemporaryFailure is returned for 5xx answers and transport errors.
	ErrTemporaryFailure = errors.New("temporary failure")

	// ErrRateLimited is returned for 429 answers.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized is returned when the credential is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to the streaming server.
type Client struct {
	baseURL    string
	token      string
	sessionID  string
	httpClient *http.Client
	// streamClient has no overall timeout; event streams stay open.
	streamClient *http.Client
	maxRetries   int
	retryWait    time.Duration
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets the server base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// WithHTTPClient sets the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStreamClient sets the client used for event streams.
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) {
		c.streamClient = hc
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryWait sets the first backoff step.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// New creates a streaming server client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		sessionID:    uuid.New().String(),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		maxRetries:   DefaultMaxRetries,
		retryWait:    DefaultRetryWait,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the configured credential.
func (c *Client) Token() string { return c.token }

// SessionID returns the id sent in SessionHeader.
func (c *Client) SessionID() string { return c.sessionID }

// backoff returns the wait before retry attempt (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.retryWait * time.Duration(1<<(attempt-1))
	if wait > maxRetryWait || wait <= 0 {
		return maxRetryWait
	}
	return wait
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(SessionHeader, c.sessionID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes the answer into out, retrying
// transient failures with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			log.Debug().
				Int("attempt", attempt).
				Int("max", c.maxRetries).
				Dur("wait", wait).
				Err(lastErr).
				Str("path", path).
				Msg("Retrying streaming server request")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}

		lastErr = c.once(ctx, method, path, body, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}

	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTemporaryFailure, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx answer to a sentinel.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := readMessage(resp.Body)

	var base error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		base = ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		base = ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		base = ErrUnauthorized
	case resp.StatusCode >= 500:
		base = ErrTemporaryFailure
	default:
		if msg == "" {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}

	if msg == "" {
		return fmt.Errorf("%w (status %d)", base, resp.StatusCode)
	}
	return fmt.Errorf("%w (status %d): %s", base, resp.StatusCode, msg)
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(b))
}

func retryable(err error) bool {
	return errors.Is(err, ErrTemporaryFailure) || errors.Is(err, ErrRateLimited)
}
