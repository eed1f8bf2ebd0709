package parser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"medorders/internal/domain"
)

// RateLimitError indicates a model endpoint returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// Endpoint identifies the model a provider talks to, for error messages.
type Endpoint struct {
	Provider string
	URL      string
	Model    string
}

func (ep Endpoint) serveHint() string {
	if ep.Provider == "ollama" {
		return "make sure Ollama is running: 'ollama serve'"
	}
	return "check that the model endpoint is reachable"
}

func (ep Endpoint) pullHint() string {
	if ep.Provider == "ollama" {
		return fmt.Sprintf("run: 'ollama pull %s'", ep.Model)
	}
	return fmt.Sprintf("check that model %q is deployed", ep.Model)
}

// TransportError maps a failed HTTP round trip onto the error taxonomy:
// deadlines become domain.ErrModelTimeout, everything else means the model
// could not be reached.
func (ep Endpoint) TransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s model %q at %s: %w", ep.Provider, ep.Model, ep.URL, domain.ErrModelTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s model %q at %s: %w", ep.Provider, ep.Model, ep.URL, domain.ErrModelTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.ModelUnavailableError{
		Provider: ep.Provider,
		Endpoint: ep.URL,
		Model:    ep.Model,
		Hint:     ep.serveHint(),
		Err:      describeTransport(err),
	}
}

// StatusError maps a non-2xx model response onto the error taxonomy.
func (ep Endpoint) StatusError(status int, body string, retryAfter string) error {
	base := fmt.Errorf("%s API error (status %d): %s", ep.Provider, status, truncate(body, 500))
	switch {
	case status == 404 || strings.Contains(strings.ToLower(body), "not found"):
		return &domain.ModelUnavailableError{
			Provider: ep.Provider,
			Endpoint: ep.URL,
			Model:    ep.Model,
			Hint:     ep.pullHint(),
			Err:      fmt.Errorf("%w: %v", domain.ErrModelNotFound, base),
		}
	case status == 429:
		return NewRateLimitError(ep.Provider, &domain.ModelUnavailableError{
			Provider: ep.Provider, Endpoint: ep.URL, Model: ep.Model, Err: base,
		}, ParseRetryAfterHeader(retryAfter))
	case status >= 500:
		return &domain.ModelUnavailableError{
			Provider: ep.Provider,
			Endpoint: ep.URL,
			Model:    ep.Model,
			Hint:     ep.serveHint(),
			Err:      base,
		}
	default:
		return base
	}
}

func describeTransport(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connection refused: %w", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("cannot resolve host %s: %w", dnsErr.Name, err)
	}
	return err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
