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
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string   { return &s }
func boolPtr(b bool) *bool      { return &b }
func intPtr(i int) *int         { return &i }
func f64Ptr(f float64) *float64 { return &f }
func themePtr(th Theme) *Theme  { return &th }

func configuredDoc() *Document {
	doc := Defaults()
	doc.Jenkins.URL = "https://ci.example.com"
	doc.Jenkins.Username = "builder"
	doc.Jenkins.APIToken = "aesgcm:amVua2lucw"
	doc.GitHub.Token = "aesgcm:Z2l0aHVi"
	doc.AI.APIKey = "aesgcm:Z2VtaW5p"
	return doc
}

func TestMerge_NilUpdateChangesNothing(t *testing.T) {
	current := configuredDoc()

	merged := merge(current, nil)

	assert.Equal(t, current, merged)
	assert.NotSame(t, current, merged, "merge must return a copy")
}

func TestMerge_AbsentSectionsPreserved(t *testing.T) {
	current := configuredDoc()

	merged := merge(current, &Update{
		Preferences: &PreferencesUpdate{Theme: themePtr(ThemeDark)},
	})

	assert.Equal(t, ThemeDark, merged.Preferences.Theme)
	assert.Equal(t, current.Jenkins, merged.Jenkins, "untouched section must not change")
	assert.Equal(t, current.GitHub, merged.GitHub)
	assert.Equal(t, current.AI, merged.AI)
}

func TestMerge_SecretHandling(t *testing.T) {
	tests := []struct {
		name      string
		token     *string
		wantToken string
	}{
		{"absent preserves stored", nil, "aesgcm:amVua2lucw"},
		{"blank preserves stored", strPtr(""), "aesgcm:amVua2lucw"},
		{"whitespace preserves stored", strPtr("   "), "aesgcm:amVua2lucw"},
		{"placeholder preserves stored", strPtr(RedactedPlaceholder), "aesgcm:amVua2lucw"},
		{"new value replaces", strPtr("fresh-token-123"), "fresh-token-123"},
		{"new value is trimmed", strPtr("  fresh-token-123  "), "fresh-token-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := configuredDoc()
			merged := merge(current, &Update{
				Jenkins: &JenkinsUpdate{APIToken: tt.token},
			})
			assert.Equal(t, tt.wantToken, merged.Jenkins.APIToken)
		})
	}
}

func TestMerge_NonSecretBlankOverwrites(t *testing.T) {
	current := configuredDoc()

	// Clearing the URL is a real request; only secrets get the
	// blank-preserving treatment.
	merged := merge(current, &Update{
		Jenkins: &JenkinsUpdate{URL: strPtr("")},
	})

	assert.Empty(t, merged.Jenkins.URL)
	assert.Equal(t, current.Jenkins.Username, merged.Jenkins.Username)
}

func TestMerge_ScalarFields(t *testing.T) {
	current := configuredDoc()

	merged := merge(current, &Update{
		Jenkins: &JenkinsUpdate{VerifySSL: boolPtr(false)},
		AI: &AIUpdate{
			Model:       strPtr("gemini-1.5-pro"),
			Temperature: f64Ptr(1.5),
			MaxTokens:   intPtr(8192),
		},
		Preferences: &PreferencesUpdate{
			AutoAnalyze: boolPtr(true),
			PageSize:    intPtr(50),
		},
	})

	assert.False(t, merged.Jenkins.VerifySSL)
	assert.Equal(t, "gemini-1.5-pro", merged.AI.Model)
	assert.Equal(t, 1.5, merged.AI.Temperature)
	assert.Equal(t, 8192, merged.AI.MaxTokens)
	assert.True(t, merged.Preferences.AutoAnalyze)
	assert.Equal(t, 50, merged.Preferences.PageSize)
	assert.Equal(t, "aesgcm:Z2VtaW5p", merged.AI.APIKey, "scalar update must not disturb the stored key")
}

func TestMerge_DoesNotMutateCurrent(t *testing.T) {
	current := configuredDoc()
	before := *current

	merge(current, &Update{
		Jenkins:     &JenkinsUpdate{URL: strPtr("https://other.example.com")},
		Preferences: &PreferencesUpdate{PageSize: intPtr(1)},
	})

	assert.Equal(t, before, *current)
}

func TestUpdate_IsEmpty(t *testing.T) {
	assert.True(t, (*Update)(nil).IsEmpty())
	assert.True(t, (&Update{}).IsEmpty())
	assert.False(t, (&Update{GitHub: &GitHubUpdate{}}).IsEmpty())
}
