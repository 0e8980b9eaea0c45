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

package secrets

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"api token", "11aabbccddeeff00112233445566778899"},
		{"gemini key", "AIzaSy" + strings.Repeat("x", 33)},
		{"empty string", ""},
		{"unicode", "pa$$wörd-秘密"},
		{"long value", strings.Repeat("s3cret!", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.True(t, IsEncrypted(blob))
			assert.NotContains(t, blob, tt.plaintext)

			got, err := c.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestCipher_NonDeterministic(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh nonce must produce distinct blobs")
}

func TestCipher_WrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(t))
	require.NoError(t, err)
	c2, err := NewCipher(testKey(t))
	require.NoError(t, err)

	blob, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(blob)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestCipher_TamperedBlob(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	blob, err := c.Encrypt("secret")
	require.NoError(t, err)

	// Flip the last character of the base64 payload.
	last := blob[len(blob)-1]
	flipped := byte('A')
	if last == 'A' {
		flipped = 'B'
	}
	tampered := blob[:len(blob)-1] + string(flipped)

	_, err = c.Decrypt(tampered)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestCipher_MalformedBlobs(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		blob string
	}{
		{"no prefix", "not-a-blob"},
		{"empty", ""},
		{"prefix only", "aesgcm:"},
		{"bad base64", "aesgcm:!!!!"},
		{"truncated below nonce", "aesgcm:AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.blob)
			var decErr *DecryptionError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestNewCipher_RejectsBadKeyLength(t *testing.T) {
	_, err := NewCipher(make([]byte, 16))
	assert.Error(t, err)

	_, err = NewCipher(nil)
	assert.Error(t, err)
}

func TestIsEncrypted(t *testing.T) {
	assert.True(t, IsEncrypted("aesgcm:AAAA"))
	assert.False(t, IsEncrypted("ghp_plaintexttoken"))
	assert.False(t, IsEncrypted(""))
}
