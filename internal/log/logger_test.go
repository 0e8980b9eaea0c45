// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Info("test message", slog.String("field", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["field"] != "value" {
		t.Errorf("field = %v, want %q", entry["field"], "value")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "info",
		Format: FormatText,
		Output: &buf,
	})

	logger.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("Text output missing message: %q", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "warn",
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Debug("debug message")
	logger.Info("info message")

	if buf.Len() != 0 {
		t.Errorf("Expected no output below warn level, got %q", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("Expected warn message to be logged")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromEnv_Debug(t *testing.T) {
	t.Setenv("TESTINSIGHT_DEBUG", "1")

	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Level)
	}
	if !cfg.AddSource {
		t.Error("AddSource should be enabled in debug mode")
	}
}

func TestFromEnv_LevelPrecedence(t *testing.T) {
	t.Setenv("TESTINSIGHT_DEBUG", "")
	t.Setenv("TESTINSIGHT_LOG_LEVEL", "error")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()
	if cfg.Level != "error" {
		t.Errorf("Level = %q, want error (TESTINSIGHT_LOG_LEVEL takes precedence)", cfg.Level)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"long key", "AIzaSyABCDEF1234567890", "...7890"},
		{"short key", "abcd", "[REDACTED]"},
		{"empty", "", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeAPIKey(tt.key); got != tt.want {
				t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSanitizeSecret(t *testing.T) {
	if got := SanitizeSecret("super-secret-token"); got != "[REDACTED]" {
		t.Errorf("SanitizeSecret() = %q, want [REDACTED]", got)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithComponent(logger, "settings").Info("hi")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry[ComponentKey] != "settings" {
		t.Errorf("component = %v, want settings", entry[ComponentKey])
	}
}
