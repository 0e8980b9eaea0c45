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

// Package secrets implements encryption-at-rest for credential fields in the
// settings document.
//
// Two pieces work together:
//
//   - KeyManager owns the per-installation encryption key. The key is created
//     lazily on first use and is immutable afterwards. By default it is 32
//     random bytes stored hex-encoded in a 0600 file inside the data
//     directory. When TESTINSIGHT_MASTER_KEY is set the key is instead
//     derived from that passphrase with argon2id over a random per-install
//     salt, so headless deployments can provision the key through the
//     environment. Optionally the key material can live in the OS keychain
//     (macOS Keychain, Linux Secret Service, Windows Credential Manager)
//     with the file as fallback.
//
//   - Cipher encrypts and decrypts individual secret values with
//     AES-256-GCM. Every encryption uses a fresh random nonce, so equal
//     plaintexts produce different blobs. Blobs carry the "aesgcm:" prefix
//     followed by base64url(nonce || ciphertext), which lets callers test
//     for presence of an encrypted value without touching key material.
//
// Failure modes are typed: a key file with bad contents yields
// *KeyCorruptError, and a blob that cannot be authenticated yields
// *DecryptionError. Both are data-integrity signals, distinct from user
// input validation errors.
package secrets
