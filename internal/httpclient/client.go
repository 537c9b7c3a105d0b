// Package httpclient is a retrying, rate-limited JSON HTTP client used for
// ledger index queries and webhook delivery.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps http.Client with retries, an optional token-bucket limiter
// and optional request authentication.
type Client struct {
	httpClient *http.Client
	retry      RetryConfig
	limiter    *rate.Limiter
	auth       AuthProvider
	name       string
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RetryableStatuses []int
}

// DefaultRetryConfig retries gateway and throttling responses three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RetryableStatuses: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Option configures a Client.
type Option func(*Client)

// WithRetry replaces the default retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimit caps outgoing requests to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithAuth applies auth to every request.
func WithAuth(auth AuthProvider) Option {
	return func(c *Client) { c.auth = auth }
}

// WithTransport swaps the underlying round tripper, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// New creates a client named name for logging.
func New(name string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryConfig(),
		name:       name,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes req, retrying transport errors and retryable statuses with
// exponential backoff. The request body is replayed through GetBody.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.DebugContext(ctx, "retrying request",
				"client", c.name,
				"attempt", attempt,
				"method", req.Method,
				"url", req.URL.String(),
				"backoff", backoff,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("replay body: %w", err)
				}
				req.Body = body
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		if c.auth != nil {
			if err := c.auth.Apply(req); err != nil {
				return nil, fmt.Errorf("apply auth: %w", err)
			}
		}

		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		if slices.Contains(c.retry.RetryableStatuses, resp.StatusCode) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded for %s: %w", req.URL.String(), lastErr)
}

// GetJSON performs a GET and decodes a JSON response into result.
func (c *Client) GetJSON(ctx context.Context, url string, result any) error {
	return NewRequest(http.MethodGet, url).Context(ctx).ExecuteJSON(c, result)
}

// PostJSON posts body as JSON and decodes the response into result when
// result is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, body, result any) error {
	return NewRequest(http.MethodPost, url).Context(ctx).JSON(body).ExecuteJSON(c, result)
}

// decodeJSON closes resp and turns a >=400 status into *HTTPError.
func decodeJSON(resp *http.Response, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPError is a non-success response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// StatusCode returns the status of an *HTTPError anywhere in err's chain,
// or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
