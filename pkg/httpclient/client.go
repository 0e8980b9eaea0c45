// Package httpclient provides a unified HTTP client factory with consistent
// timeout, retry, and logging behavior for all outbound TestInsight requests
// (Jenkins, GitHub, and the Gemini API).
//
// The client factory composes transport layers to provide:
//   - Automatic retries with exponential backoff and jitter (idempotent only)
//   - Request logging with sanitized URLs (sensitive params redacted)
//   - User-Agent header injection
//   - TLS 1.2+ with secure defaults, with an explicit opt-out for
//     self-signed CI servers
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 10 * time.Second
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Get("https://ci.example.com/api/json")
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New creates a new HTTP client with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Logging transport handles request logging and the User-Agent header.
	var finalTransport http.RoundTripper = newLoggingTransport(baseTransport, cfg.UserAgent)

	// Retry transport wraps the logging transport so each attempt is logged.
	if cfg.RetryAttempts > 0 {
		finalTransport = newRetryTransport(finalTransport, cfg)
	}

	return &http.Client{
		Transport: finalTransport,
		Timeout:   cfg.Timeout,
	}, nil
}
