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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// KeyLength is the AES-256 key size in bytes.
	KeyLength = 32

	// gcmNonceSize is the GCM nonce size: 96 bits, the standard for GCM.
	gcmNonceSize = 12

	// blobPrefix marks an encrypted value. Presence of the prefix is the
	// observable "this field is configured" signal; it never appears in
	// plaintext user input because validation rejects it there.
	blobPrefix = "aesgcm:"
)

// Cipher encrypts and decrypts individual secret values with AES-256-GCM.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals a plaintext secret into a portable blob. Each call uses a
// fresh random nonce, so encrypting the same plaintext twice yields
// different blobs. The empty string is a valid plaintext and round-trips.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return blobPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Returns *DecryptionError if the
// blob is malformed, truncated, tampered with, or sealed under a different
// key.
func (c *Cipher) Decrypt(blob string) (string, error) {
	if !IsEncrypted(blob) {
		return "", &DecryptionError{Reason: "value is not an encrypted blob"}
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(blob, blobPrefix))
	if err != nil {
		return "", &DecryptionError{Reason: "invalid blob encoding", Cause: err}
	}

	if len(raw) < gcmNonceSize {
		return "", &DecryptionError{Reason: "blob truncated"}
	}

	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed (wrong key or corrupted data)", Cause: err}
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value is an encrypted blob. The check
// is purely syntactic and never touches key material.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, blobPrefix)
}
