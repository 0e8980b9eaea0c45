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

import "strings"

// Update is a partial settings change. Nil pointers mean "leave unchanged",
// which lets a client PUT only the section it edited. For secret fields a
// blank (empty or whitespace) value also means "leave unchanged", so a form
// that round-trips a redacted document never wipes stored credentials.
type Update struct {
	Jenkins     *JenkinsUpdate     `json:"jenkins,omitempty"`
	GitHub      *GitHubUpdate      `json:"github,omitempty"`
	AI          *AIUpdate          `json:"ai,omitempty"`
	Preferences *PreferencesUpdate `json:"preferences,omitempty"`
}

// JenkinsUpdate is a partial change to the Jenkins section.
type JenkinsUpdate struct {
	URL       *string `json:"url,omitempty"`
	Username  *string `json:"username,omitempty"`
	APIToken  *string `json:"api_token,omitempty"`
	VerifySSL *bool   `json:"verify_ssl,omitempty"`
}

// GitHubUpdate is a partial change to the GitHub section.
type GitHubUpdate struct {
	Token *string `json:"token,omitempty"`
}

// AIUpdate is a partial change to the AI section.
type AIUpdate struct {
	APIKey      *string  `json:"api_key,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// PreferencesUpdate is a partial change to the preferences section.
type PreferencesUpdate struct {
	Theme       *Theme `json:"theme,omitempty"`
	AutoAnalyze *bool  `json:"auto_analyze,omitempty"`
	PageSize    *int   `json:"page_size,omitempty"`
}

// IsEmpty reports whether the update changes nothing at all.
func (u *Update) IsEmpty() bool {
	return u == nil || (u.Jenkins == nil && u.GitHub == nil && u.AI == nil && u.Preferences == nil)
}

// merge applies an update to a copy of current and returns the result. The
// merged document may hold freshly supplied secrets in plaintext; the
// service encrypts them after validation, before anything is persisted.
func merge(current *Document, upd *Update) *Document {
	doc := current.Clone()
	if upd == nil {
		return doc
	}

	if j := upd.Jenkins; j != nil {
		if j.URL != nil {
			doc.Jenkins.URL = strings.TrimSpace(*j.URL)
		}
		if j.Username != nil {
			doc.Jenkins.Username = strings.TrimSpace(*j.Username)
		}
		applySecret(&doc.Jenkins.APIToken, j.APIToken)
		if j.VerifySSL != nil {
			doc.Jenkins.VerifySSL = *j.VerifySSL
		}
	}

	if g := upd.GitHub; g != nil {
		applySecret(&doc.GitHub.Token, g.Token)
	}

	if a := upd.AI; a != nil {
		applySecret(&doc.AI.APIKey, a.APIKey)
		if a.Model != nil {
			doc.AI.Model = strings.TrimSpace(*a.Model)
		}
		if a.Temperature != nil {
			doc.AI.Temperature = *a.Temperature
		}
		if a.MaxTokens != nil {
			doc.AI.MaxTokens = *a.MaxTokens
		}
	}

	if p := upd.Preferences; p != nil {
		if p.Theme != nil {
			doc.Preferences.Theme = *p.Theme
		}
		if p.AutoAnalyze != nil {
			doc.Preferences.AutoAnalyze = *p.AutoAnalyze
		}
		if p.PageSize != nil {
			doc.Preferences.PageSize = *p.PageSize
		}
	}

	return doc
}

// applySecret overwrites dst only when the update carries a usable value.
// Absent, blank, and the redaction placeholder all preserve the stored
// credential, so echoing a redacted document back is a no-op. There is no
// way to clear a secret through a partial update short of a reset or
// restore.
func applySecret(dst *string, src *string) {
	if src == nil {
		return
	}
	v := strings.TrimSpace(*src)
	if v == "" || v == RedactedPlaceholder {
		return
	}
	*dst = v
}
