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

// Package probe checks connectivity to the external services TestInsight
// talks to: Jenkins, GitHub, and the Gemini API. Probes report failures as
// values, never panics, so a dead server or a bad credential is an ordinary
// result the UI can display.
package probe

import (
	"context"
	"errors"
	"fmt"
)

// Service names used in results and metrics labels.
const (
	ServiceJenkins = "jenkins"
	ServiceGitHub  = "github"
	ServiceAI      = "ai"
)

// Result is the outcome of one connection test. Success=false with a filled
// Message is the normal shape for an unreachable or misconfigured service.
type Result struct {
	Service string `json:"service"`
	Success bool   `json:"success"`

	// Message is a short human-readable summary, set on success and failure.
	Message string `json:"message"`

	// ErrorDetails carries diagnostic detail on failure, sanitized of
	// credentials. Empty on success.
	ErrorDetails string `json:"error_details,omitempty"`
}

// Kind classifies a probe failure.
type Kind string

const (
	// KindMisconfigured means required settings are missing or unusable.
	KindMisconfigured Kind = "misconfigured"

	// KindNetwork means the service could not be reached.
	KindNetwork Kind = "network"

	// KindTimeout means the probe deadline elapsed.
	KindTimeout Kind = "timeout"

	// KindAuth means the service rejected the credential.
	KindAuth Kind = "auth"

	// KindBadResponse means the service answered with an unexpected status.
	KindBadResponse Kind = "bad_response"
)

// Error is a classified probe failure. Message is safe to show to users and
// never contains credential material.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// classify turns a transport-level error into a probe error, mapping
// deadline expiry to KindTimeout and everything else to KindNetwork.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Message: "connection timed out", Cause: err}
	}
	return &Error{Kind: KindNetwork, Message: "could not reach server", Cause: err}
}

// JenkinsConfig is the credential set for a Jenkins probe.
type JenkinsConfig struct {
	URL       string
	Username  string
	APIToken  string
	VerifySSL bool
}

// GitHubConfig is the credential set for a GitHub probe.
type GitHubConfig struct {
	Token string
}

// AIConfig is the credential set for a Gemini API probe.
type AIConfig struct {
	APIKey string
	Model  string
}

// JenkinsProber verifies a Jenkins server is reachable and the credential
// works.
type JenkinsProber interface {
	Probe(ctx context.Context, cfg JenkinsConfig) error
}

// GitHubProber verifies a GitHub token is valid.
type GitHubProber interface {
	Probe(ctx context.Context, cfg GitHubConfig) error
}

// AIProber verifies a Gemini API key and lists the generation models it can
// use.
type AIProber interface {
	Probe(ctx context.Context, cfg AIConfig) error
	ListModels(ctx context.Context, cfg AIConfig) ([]ModelInfo, error)
}
