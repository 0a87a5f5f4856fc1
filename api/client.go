package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/config"
	"leadscore-backtest/helpers"
	"leadscore-backtest/logger"
)

// StatusError is a non-2xx response from the scorer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scorer returned HTTP %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client calls the scorer HTTP API with a per-attempt timeout and a fixed
// backoff between retries of transient failures.
type Client struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

// NewClient creates a scorer client from cfg.
func NewClient(cfg config.ScorerConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		http:       &http.Client{},
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		log:        logger.OrNop(log).Named("scorer-client"),
	}
}

// BaseURL returns the scorer address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks GET /health once, without retries.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.attempt(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, fmt.Errorf("scorer health: %w", err)
	}
	if out.Status != "healthy" {
		return &out, fmt.Errorf("scorer health: status %q", out.Status)
	}
	return &out, nil
}

// QualifyDomain calls POST /qualify.
func (c *Client) QualifyDomain(ctx context.Context, req QualifyRequest) (*QualifyResponse, error) {
	var out QualifyResponse
	if err := c.do(ctx, "/qualify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QualifyText calls POST /qualify/text.
func (c *Client) QualifyText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	var out TextResponse
	if err := c.do(ctx, "/qualify/text", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := helpers.WaitFor(ctx, c.backoff); err != nil {
				return fmt.Errorf("%s: %w (last error: %v)", path, err, lastErr)
			}
		}

		lastErr = c.attempt(ctx, http.MethodPost, path, payload, dest)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", path, ctx.Err())
		}
		if !IsTransient(lastErr) {
			return fmt.Errorf("%s: %w", path, lastErr)
		}
		c.log.Warn("scorer request failed",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.maxRetries+1),
			zap.Error(lastErr))
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", path, c.maxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, dest interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsTransient reports whether a scorer call failure is worth retrying:
// timeouts, connection errors, 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
