// Package apiclient is the JSON-over-HTTP transport shared by the clients of
// the schedule, notification and users services. Every call goes through a
// circuit breaker and is retried on transient failures.
package apiclient

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

	"github.com/alem-hub/friendship-streaks/pkg/circuitbreaker"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/retry"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("apiclient: resource not found")

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config contains client configuration.
type Config struct {
	// Name identifies the remote service in logs and breaker state.
	Name    string
	BaseURL string
	Timeout time.Duration

	MaxAttempts int

	BreakerThreshold   int
	BreakerTimeout     time.Duration
	BreakerHalfOpenMax int

	// OnBreakerStateChange is called on every breaker transition.
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)
}

// Client performs JSON requests against one base URL.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerHalfOpenMax <= 0 {
		cfg.BreakerHalfOpenMax = 1
	}

	log = log.With(logger.Component(cfg.Name + "-client"))
	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if cfg.OnBreakerStateChange != nil {
			cfg.OnBreakerStateChange(name, from, to)
		}
	}

	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		retrier: retry.HTTPRetrier(cfg.MaxAttempts,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("retrying request", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
			}),
		),
		breaker: circuitbreaker.ServiceBreaker(cfg.Name, cfg.BreakerThreshold, cfg.BreakerTimeout, cfg.BreakerHalfOpenMax, onChange,
			circuitbreaker.WithIsFailure(isRemoteFailure),
		),
		log: log,
	}
}

// Name returns the remote service name.
func (c *Client) Name() string { return c.name }

// BreakerState returns the current breaker state.
func (c *Client) BreakerState() circuitbreaker.State { return c.breaker.State() }

// Do sends body (if non-nil) as JSON and decodes a 2xx response into out
// (if non-nil). 404 maps to ErrNotFound and is not counted by the breaker.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			err := c.doOnce(ctx, method, path, body, out)
			if err != nil && isTransient(err) {
				return retry.Retryable(err)
			}
			return err
		})
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("request completed",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func isRemoteFailure(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
