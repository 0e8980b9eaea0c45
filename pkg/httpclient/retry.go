package httpclient

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// retryTransport wraps an http.RoundTripper to add retry logic with
// exponential backoff. Only idempotent methods (GET, HEAD, OPTIONS) are
// retried; connection probes are all GETs so this covers the whole
// outbound surface.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &retryTransport{
		base:        base,
		maxAttempts: cfg.RetryAttempts + 1, // +1 because attempts include initial try
		baseBackoff: cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// RoundTrip implements http.RoundTripper with retry logic.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isIdempotentMethod(req.Method) {
		return t.base.RoundTrip(req)
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(t.calculateBackoff(attempt - 1)):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		resp, err := t.base.RoundTrip(req)

		if err == nil && !shouldRetryStatus(resp.StatusCode) {
			return resp, nil
		}

		if err != nil && !isRetryableError(err) {
			return nil, err
		}

		lastErr = err
		lastResp = resp

		// Drain the body of a response we won't return so the underlying
		// connection can be reused for the next attempt. The final
		// attempt's response goes back to the caller untouched.
		if attempt < t.maxAttempts && resp != nil && resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}

// shouldRetryStatus determines if an HTTP status code should trigger a retry.
func shouldRetryStatus(statusCode int) bool {
	switch {
	case statusCode >= 500 && statusCode < 600:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is not retryable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	errMsg := strings.ToLower(err.Error())
	transientKeywords := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"eof",
	}

	for _, keyword := range transientKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

// calculateBackoff computes the delay for a given attempt with exponential
// backoff and 0-20% jitter.
func (t *retryTransport) calculateBackoff(attempt int) time.Duration {
	backoff := float64(t.baseBackoff) * math.Pow(2.0, float64(attempt-1))

	if backoff > float64(t.maxBackoff) {
		backoff = float64(t.maxBackoff)
	}

	jitter := rand.Float64() * backoff * 0.2

	return time.Duration(backoff + jitter)
}
