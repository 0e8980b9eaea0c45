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

// Package settings persists TestInsight configuration: Jenkins, GitHub, and
// AI credentials plus UI preferences. Secrets are encrypted at rest with the
// installation key from the secrets package; everything else is plain JSON.
package settings

import "time"

// SchemaVersion is the current on-disk document version. Documents written
// by newer releases are refused rather than silently reinterpreted.
const SchemaVersion = 1

// Theme selects the UI color scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// JenkinsSettings holds the Jenkins server connection.
type JenkinsSettings struct {
	// URL is the Jenkins base URL, e.g. https://ci.example.com.
	URL string `json:"url,omitempty"`

	// Username is the Jenkins account the API token belongs to.
	Username string `json:"username,omitempty"`

	// APIToken is the Jenkins API token. Encrypted at rest.
	APIToken string `json:"api_token,omitempty"`

	// VerifySSL controls TLS certificate verification when talking to the
	// server. Disable only for self-signed internal instances.
	VerifySSL bool `json:"verify_ssl"`
}

// GitHubSettings holds the GitHub access configuration.
type GitHubSettings struct {
	// Token is a personal access token. Encrypted at rest.
	Token string `json:"token,omitempty"`
}

// AISettings holds the AI provider configuration.
type AISettings struct {
	// APIKey is the Gemini API key. Encrypted at rest.
	APIKey string `json:"api_key,omitempty"`

	// Model is the generation model name, e.g. gemini-1.5-flash.
	Model string `json:"model"`

	// Temperature is the sampling temperature, 0 to 2.
	Temperature float64 `json:"temperature"`

	// MaxTokens caps the response length, 1 to 32768.
	MaxTokens int `json:"max_tokens"`
}

// Preferences holds non-credential user preferences.
type Preferences struct {
	Theme Theme `json:"theme"`

	// AutoAnalyze triggers analysis automatically when a failure is opened.
	AutoAnalyze bool `json:"auto_analyze"`

	// PageSize is the result list page size, 1 to 100.
	PageSize int `json:"page_size"`
}

// Document is the full settings document as stored on disk. Secret fields
// hold ciphertext blobs; use Redact before returning a Document to callers.
type Document struct {
	Jenkins     JenkinsSettings `json:"jenkins"`
	GitHub      GitHubSettings  `json:"github"`
	AI          AISettings      `json:"ai"`
	Preferences Preferences     `json:"preferences"`

	SchemaVersion int `json:"schema_version"`

	// LastUpdated is the time of the last successful mutation. Zero for a
	// fresh install that has never been written.
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// Defaults returns a new document with factory settings and no credentials.
func Defaults() *Document {
	return &Document{
		Jenkins: JenkinsSettings{
			VerifySSL: true,
		},
		AI: AISettings{
			Model:       "gemini-1.5-flash",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Preferences: Preferences{
			Theme:       ThemeSystem,
			AutoAnalyze: false,
			PageSize:    25,
		},
		SchemaVersion: SchemaVersion,
	}
}

// Clone returns a deep copy. The document has no reference-typed fields, so
// a value copy suffices, but mutations must never alias the original.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// secretField describes one encrypted field so redaction, presence checks,
// and encryption can walk them generically.
type secretField struct {
	key string
	get func(*Document) string
	set func(*Document, string)
}

// secretFields enumerates every field that is encrypted at rest. Keys match
// the external field paths used in validation errors and status reports.
var secretFields = []secretField{
	{
		key: "jenkins.api_token",
		get: func(d *Document) string { return d.Jenkins.APIToken },
		set: func(d *Document, v string) { d.Jenkins.APIToken = v },
	},
	{
		key: "github.token",
		get: func(d *Document) string { return d.GitHub.Token },
		set: func(d *Document, v string) { d.GitHub.Token = v },
	},
	{
		key: "ai.api_key",
		get: func(d *Document) string { return d.AI.APIKey },
		set: func(d *Document, v string) { d.AI.APIKey = v },
	},
}
