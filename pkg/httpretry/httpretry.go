// Package httpretry provides an HTTP client with per-attempt timeouts and
// bounded exponential backoff on transient failures.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds retry behavior.
type Config struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultConfig returns defaults suitable for public terminology APIs.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    10 * time.Second,
	}
}

// Client wraps http.Client with retry semantics. Only transient failures are
// retried: network errors and 429/503/504 responses. Other 4xx/5xx statuses
// are returned to the caller on the first attempt.
type Client struct {
	http   *http.Client
	config Config
	logger *zap.Logger
}

// New creates a retrying client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		http:   &http.Client{},
		config: cfg,
		logger: logger,
	}
}

// Do executes the request returned by build, retrying transient failures.
// build runs once per attempt so request bodies are rebuilt cleanly. The
// response body is fully read and returned alongside the status code.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (int, []byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		status, body, err := c.attempt(ctx, build)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if retryableStatus(status) {
			lastErr = fmt.Errorf("transient status %d", status)
			continue
		}
		return status, body, nil
	}

	return 0, nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := build(attemptCtx)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.BaseDelay << (attempt - 1)
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	return delay
}

// retryableStatus reports whether a status indicates a transient condition.
// 4xx responses other than 429 are semantic failures and never retried.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
