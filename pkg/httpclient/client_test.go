package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, true},
		{"zero backoff with retries", func(c *Config) { c.RetryBackoff = 0 }, true},
		{"max backoff below base", func(c *Config) { c.MaxBackoff = c.RetryBackoff / 2 }, true},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, true},
		{"no retries skips backoff checks", func(c *Config) {
			c.RetryAttempts = 0
			c.RetryBackoff = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_SetsUserAgent(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "testinsight-test/1.0"
	cfg.RetryAttempts = 0
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotUA.Load() != "testinsight-test/1.0" {
		t.Errorf("User-Agent = %v, want testinsight-test/1.0", gotUA.Load())
	}
}

func TestNew_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200 after retries", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Server called %d times, want 3", calls.Load())
	}
}

func TestNew_ExhaustedRetriesReturnReadableBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("still down"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Server called %d times, want 3", calls.Load())
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "still down" {
		t.Errorf("Body = %q, want %q", body, "still down")
	}
}

func TestNew_DoesNotRetryPOST(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("Server called %d times, want 1 (no retry for POST)", calls.Load())
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "gemini key param redacted",
			in:   "https://generativelanguage.googleapis.com/v1beta/models?key=AIzaSySECRET",
			want: "https://generativelanguage.googleapis.com/v1beta/models?key=%5BREDACTED%5D",
		},
		{
			name: "plain url untouched",
			in:   "https://ci.example.com/api/json?depth=1",
			want: "https://ci.example.com/api/json?depth=1",
		},
		{
			name: "api_key variant redacted",
			in:   "https://example.com/?api_key=abc&page=2",
			want: "https://example.com/?api_key=%5BREDACTED%5D&page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			if got := sanitizeURL(u); got != tt.want {
				t.Errorf("sanitizeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldRetryStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{301, false},
		{401, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		if got := shouldRetryStatus(tt.status); got != tt.want {
			t.Errorf("shouldRetryStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
