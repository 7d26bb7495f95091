// Package httpclient is the outbound HTTP stack for calls to peer services:
// a retrying client and a circuit breaker around it.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config tunes the retrying client.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	MaxConns     int
}

// DefaultConfig suits lookups against a nearby service.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		MaxConns:     32,
	}
}

// Client retries idempotent requests on network errors and 5xx answers.
type Client struct {
	http *http.Client
	cfg  Config
}

// New builds a Client with its own pooled transport.
func New(cfg Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConns > 0 {
		transport.MaxConnsPerHost = cfg.MaxConns
		transport.MaxIdleConnsPerHost = cfg.MaxConns
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

// Do sends req. GET and HEAD requests are retried up to MaxRetries times
// with capped exponential backoff; other methods are sent once since their
// bodies cannot be replayed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	retries := c.cfg.MaxRetries
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.http.Do(req)
		last := attempt >= retries

		switch {
		case err != nil && (last || !retryable(err)):
			return nil, fmt.Errorf("%s %s failed after %d attempt(s): %w", req.Method, req.URL.Path, attempt+1, err)
		case err == nil && (last || !retryableStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_ = resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.wait(attempt)):
		}
	}
}

func (c *Client) wait(attempt int) time.Duration {
	d := c.cfg.RetryWaitMin << attempt
	if c.cfg.RetryWaitMax > 0 && (d > c.cfg.RetryWaitMax || d <= 0) {
		return c.cfg.RetryWaitMax
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}
