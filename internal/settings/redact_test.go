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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	doc := configuredDoc()

	redacted := Redact(doc)

	assert.Equal(t, RedactedPlaceholder, redacted.Jenkins.APIToken)
	assert.Equal(t, RedactedPlaceholder, redacted.GitHub.Token)
	assert.Equal(t, RedactedPlaceholder, redacted.AI.APIKey)

	// Non-secret fields pass through.
	assert.Equal(t, doc.Jenkins.URL, redacted.Jenkins.URL)
	assert.Equal(t, doc.Jenkins.Username, redacted.Jenkins.Username)

	// The original is untouched.
	assert.Equal(t, "aesgcm:amVua2lucw", doc.Jenkins.APIToken)
}

func TestRedact_UnsetSecretsStayEmpty(t *testing.T) {
	redacted := Redact(Defaults())

	assert.Empty(t, redacted.Jenkins.APIToken)
	assert.Empty(t, redacted.GitHub.Token)
	assert.Empty(t, redacted.AI.APIKey)
}

func TestRedact_SerializedFormLeaksNothing(t *testing.T) {
	doc := configuredDoc()

	data, err := json.Marshal(Redact(doc))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "aesgcm:")
}

func TestSecretStatus(t *testing.T) {
	doc := Defaults()
	doc.GitHub.Token = "aesgcm:Z2l0aHVi"

	status := SecretStatus(doc)

	assert.Equal(t, map[string]map[string]bool{
		"jenkins": {"api_token": false},
		"github":  {"token": true},
		"ai":      {"api_key": false},
	}, status)
}
