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

import "fmt"

// KeyCorruptError indicates the key file exists but does not hold valid key
// material (wrong length, bad encoding, unreadable). This is an operational
// incident, not user error: the caller should alert rather than regenerate
// the key, since regenerating would orphan every stored secret.
type KeyCorruptError struct {
	// Path is the key file location.
	Path string

	// Reason explains what is wrong with the file.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *KeyCorruptError) Error() string {
	return fmt.Sprintf("encryption key at %s is corrupt: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *KeyCorruptError) Unwrap() error {
	return e.Cause
}

// DecryptionError indicates a ciphertext blob could not be decrypted:
// malformed encoding, truncation, tampering, or a key mismatch. GCM
// authentication failure cannot distinguish those cases, so they share one
// error type.
type DecryptionError struct {
	// Reason explains the failure without echoing blob contents.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DecryptionError) Unwrap() error {
	return e.Cause
}
