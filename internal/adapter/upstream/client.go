// Package upstream fetches raw traffic message pages over HTTP.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
	"github.com/pscheid92/trafficpulse/internal/platform/version"
	"github.com/sony/gobreaker"
)

const (
	breakerComponent = "upstream"
	maxBodyBytes     = 16 << 20
)

type Config struct {
	BaseURL string
	Indent  bool
	Timeout time.Duration
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Page       int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for page %d", e.StatusCode, e.Page)
}

// RateLimited reports whether the upstream asked us to slow down.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client implements domain.PageFetcher. All requests go through a circuit breaker so a dead
// upstream is not hammered every poll cycle.
type Client struct {
	base   *url.URL
	indent bool
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
}

var _ domain.PageFetcher = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q must be http or https", cfg.BaseURL)
	}

	return &Client{
		base:   base,
		indent: cfg.Indent,
		http:   &http.Client{Timeout: cfg.Timeout},
		cb:     newBreaker(30 * time.Second),
	}, nil
}

// newBreaker opens after 60% of at least 5 requests fail within a 60s window, and probes
// again after openTimeout.
func newBreaker(openTimeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerComponent,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// FetchPage returns the raw body of page n.
func (c *Client) FetchPage(ctx context.Context, n int) ([]byte, error) {
	body, err := c.cb.Execute(func() (interface{}, error) {
		return c.get(ctx, n)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("upstream circuit breaker open: %w", err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

// BreakerState is the breaker's current state name, for status reporting.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func (c *Client) PageURL(n int) string {
	u := *c.base
	q := u.Query()
	q.Set("format", "json")
	q.Set("indent", strconv.FormatBool(c.indent))
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, n int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(n), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", n, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Page: n}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", n, err)
	}
	return body, nil
}
