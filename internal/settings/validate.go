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

package settings

import (
	"net/url"
	"strings"

	"github.com/testinsight/testinsight/internal/secrets"
)

const (
	geminiKeyPrefix = "AIzaSy"
	geminiKeyLength = 39

	minTokenLength = 10
)

var githubTokenPrefixes = []string{"ghp_", "github_pat_", "gho_", "ghs_", "ghu_", "ghr_"}

// Validate checks a full document and returns every problem found, keyed by
// field path. It is pure: no I/O, no mutation, and it never decrypts. Secret
// fields that already hold ciphertext are accepted as-is; format checks
// apply only to freshly supplied plaintext. Messages never echo the secret.
func Validate(doc *Document) ValidationErrors {
	errs := ValidationErrors{}

	validateJenkins(doc, errs)
	validateGitHub(doc, errs)
	validateAI(doc, errs)
	validatePreferences(doc, errs)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateJenkins(doc *Document, errs ValidationErrors) {
	j := doc.Jenkins

	if j.URL != "" {
		u, err := url.Parse(j.URL)
		if err != nil || u.Host == "" {
			errs.Add("jenkins.url", "must be a valid URL")
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("jenkins.url", "must use http or https")
		}

		// A configured server needs a complete credential pair.
		if j.Username == "" {
			errs.Add("jenkins.username", "required when a Jenkins URL is set")
		}
		if j.APIToken == "" {
			errs.Add("jenkins.api_token", "required when a Jenkins URL is set")
		}
	}

	if j.APIToken != "" && !secrets.IsEncrypted(j.APIToken) {
		if strings.TrimSpace(j.APIToken) != j.APIToken {
			errs.Add("jenkins.api_token", "must not contain leading or trailing whitespace")
		}
		if containsUnsafeChars(j.APIToken) {
			errs.Add("jenkins.api_token", "contains invalid characters")
		}
	}
}

func validateGitHub(doc *Document, errs ValidationErrors) {
	token := doc.GitHub.Token
	if token == "" || secrets.IsEncrypted(token) {
		return
	}

	if len(token) < minTokenLength {
		errs.Add("github.token", "too short to be a valid token")
	}
	if containsUnsafeChars(token) {
		errs.Add("github.token", "contains invalid characters")
	}
	if !hasGitHubPrefix(token) {
		errs.Add("github.token", "does not look like a GitHub token (expected ghp_, github_pat_, or similar prefix)")
	}
}

func validateAI(doc *Document, errs ValidationErrors) {
	a := doc.AI

	if a.APIKey != "" && !secrets.IsEncrypted(a.APIKey) {
		if !strings.HasPrefix(a.APIKey, geminiKeyPrefix) || len(a.APIKey) != geminiKeyLength {
			errs.Add("ai.api_key", "does not look like a Gemini API key")
		}
	}

	if a.APIKey != "" && a.Model == "" {
		errs.Add("ai.model", "required when an API key is set")
	}

	if a.Temperature < 0 || a.Temperature > 2 {
		errs.Add("ai.temperature", "must be between 0 and 2")
	}
	if a.MaxTokens < 1 || a.MaxTokens > 32768 {
		errs.Add("ai.max_tokens", "must be between 1 and 32768")
	}
}

func validatePreferences(doc *Document, errs ValidationErrors) {
	p := doc.Preferences

	switch p.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		errs.Add("preferences.theme", "must be light, dark, or system")
	}

	if p.PageSize < 1 || p.PageSize > 100 {
		errs.Add("preferences.page_size", "must be between 1 and 100")
	}
}

// validateUpdate rejects supplied secrets that start with the ciphertext
// marker. After merge such a value is indistinguishable from stored
// ciphertext and would be persisted unencrypted, so it is refused up front.
func validateUpdate(upd *Update) ValidationErrors {
	if upd == nil {
		return nil
	}
	errs := ValidationErrors{}

	check := func(field string, v *string) {
		if v != nil && secrets.IsEncrypted(strings.TrimSpace(*v)) {
			errs.Add(field, "value starts with a reserved prefix")
		}
	}
	if upd.Jenkins != nil {
		check("jenkins.api_token", upd.Jenkins.APIToken)
	}
	if upd.GitHub != nil {
		check("github.token", upd.GitHub.Token)
	}
	if upd.AI != nil {
		check("ai.api_key", upd.AI.APIKey)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// containsUnsafeChars rejects control characters and markup that would make
// a credential unusable or dangerous to echo into a header or URL.
func containsUnsafeChars(s string) bool {
	return strings.ContainsAny(s, "<>\"'&\x00\n\r\t ")
}

func hasGitHubPrefix(token string) bool {
	for _, p := range githubTokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	// Classic 40-char hex tokens predate the prefixed formats.
	if len(token) == 40 && isHex(token) {
		return true
	}
	return false
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
