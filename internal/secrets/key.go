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
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	// MasterKeyEnv names the environment variable that, when set, supplies a
	// passphrase the encryption key is derived from instead of being random.
	MasterKeyEnv = "TESTINSIGHT_MASTER_KEY"

	// keychainEntry is the keychain account name for the stored key.
	keychainEntry = "settings-encryption-key"

	// Argon2id parameters for passphrase-derived keys.
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // 64MB in KB
	argon2Parallelism = 4

	saltLength = 16
)

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithPassphrase derives the key from a passphrase (argon2id over a random
// per-install salt persisted next to the key file) instead of generating
// random key material.
func WithPassphrase(passphrase string) KeyManagerOption {
	return func(m *KeyManager) {
		m.passphrase = passphrase
	}
}

// WithKeychain stores the key in the OS keychain under the given service
// name, falling back to the key file when the keychain is unavailable.
func WithKeychain(service string) KeyManagerOption {
	return func(m *KeyManager) {
		m.keychainService = service
	}
}

// KeyManager creates, persists, and loads the installation's encryption key.
// The key is created lazily on first Load and treated as immutable
// afterwards; there is no rotation path. Safe for concurrent use, including
// concurrent first-run races across processes.
type KeyManager struct {
	path            string
	passphrase      string
	keychainService string

	mu  sync.Mutex
	key []byte
}

// NewKeyManager creates a key manager for the key file at path.
// The parent directory is created on demand with 0700 permissions.
func NewKeyManager(path string, opts ...KeyManagerOption) *KeyManager {
	m := &KeyManager{path: path}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the installation key, creating it on first call. The result
// is cached for the lifetime of the manager. Returns *KeyCorruptError if the
// key file exists but is malformed or has the wrong length.
func (m *KeyManager) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return m.key, nil
	}

	if err := m.ensureParentDir(); err != nil {
		return nil, err
	}

	var (
		key []byte
		err error
	)
	switch {
	case m.passphrase != "":
		key, err = m.deriveFromPassphrase()
	case m.keychainService != "":
		key, err = m.loadFromKeychain()
	default:
		key, err = m.loadFromFile()
	}
	if err != nil {
		return nil, err
	}

	m.key = key
	return m.key, nil
}

// loadFromFile reads the hex-encoded key, generating it first if absent.
// Creation uses exclusive-create semantics: when two processes race on first
// run, the loser observes EEXIST and re-reads the winner's key instead of
// overwriting it.
func (m *KeyManager) loadFromFile() ([]byte, error) {
	key, err := m.readKeyFile()
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	fresh := make([]byte, KeyLength)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Lost the creation race; the other caller's key wins.
			return m.readKeyFile()
		}
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}

	if _, err := f.WriteString(hex.EncodeToString(fresh)); err != nil {
		f.Close()
		os.Remove(m.path)
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(m.path)
		return nil, fmt.Errorf("failed to close key file: %w", err)
	}

	return fresh, nil
}

// readKeyFile loads and validates an existing key file.
func (m *KeyManager) readKeyFile() ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}

	if err := verifyFilePermissions(m.path); err != nil {
		return nil, &KeyCorruptError{Path: m.path, Reason: "insecure permissions", Cause: err}
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, &KeyCorruptError{Path: m.path, Reason: "not valid hex", Cause: err}
	}
	if len(key) != KeyLength {
		return nil, &KeyCorruptError{
			Path:   m.path,
			Reason: fmt.Sprintf("wrong key length: got %d bytes, want %d", len(key), KeyLength),
		}
	}

	return key, nil
}

// deriveFromPassphrase derives the key with argon2id over a per-install salt
// stored next to the key file. The salt is created with the same
// exclusive-create race handling as the key file.
func (m *KeyManager) deriveFromPassphrase() ([]byte, error) {
	salt, err := m.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}

	return argon2.IDKey([]byte(m.passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, KeyLength), nil
}

func (m *KeyManager) saltPath() string {
	return m.path + ".salt"
}

func (m *KeyManager) loadOrCreateSalt() ([]byte, error) {
	data, err := os.ReadFile(m.saltPath())
	if err == nil {
		salt, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil || len(salt) != saltLength {
			return nil, &KeyCorruptError{Path: m.saltPath(), Reason: "invalid salt file", Cause: decodeErr}
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	f, err := os.OpenFile(m.saltPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return m.loadOrCreateSalt()
		}
		return nil, fmt.Errorf("failed to create salt file: %w", err)
	}

	if _, err := f.WriteString(hex.EncodeToString(salt)); err != nil {
		f.Close()
		os.Remove(m.saltPath())
		return nil, fmt.Errorf("failed to write salt file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(m.saltPath())
		return nil, fmt.Errorf("failed to close salt file: %w", err)
	}

	return salt, nil
}

// loadFromKeychain retrieves the key from the OS keychain, creating it there
// on first run. Any keychain failure other than "not found" falls back to
// the file path so headless hosts keep working.
func (m *KeyManager) loadFromKeychain() ([]byte, error) {
	stored, err := keyring.Get(m.keychainService, keychainEntry)
	if err == nil {
		key, decodeErr := hex.DecodeString(stored)
		if decodeErr != nil || len(key) != KeyLength {
			return nil, &KeyCorruptError{
				Path:   "keychain:" + m.keychainService,
				Reason: "keychain entry holds invalid key material",
				Cause:  decodeErr,
			}
		}
		return key, nil
	}

	if !errors.Is(err, keyring.ErrNotFound) {
		// Keychain locked or unavailable; use the file instead.
		return m.loadFromFile()
	}

	fresh := make([]byte, KeyLength)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := keyring.Set(m.keychainService, keychainEntry, hex.EncodeToString(fresh)); err != nil {
		return m.loadFromFile()
	}

	// Re-read to resolve concurrent first-run races through the keychain.
	stored, err = keyring.Get(m.keychainService, keychainEntry)
	if err != nil {
		return fresh, nil
	}
	key, decodeErr := hex.DecodeString(stored)
	if decodeErr != nil || len(key) != KeyLength {
		return fresh, nil
	}
	return key, nil
}

// ensureParentDir creates the key file's parent directory with secure
// permissions.
func (m *KeyManager) ensureParentDir() error {
	dir := filepath.Dir(m.path)

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("parent path exists but is not a directory: %s", dir)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// verifyFilePermissions checks that a file has secure permissions (0600 or
// stricter).
func verifyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return errors.New("file is a symlink (not allowed for security)")
	}

	perm := info.Mode().Perm()
	if perm&0077 != 0 {
		return fmt.Errorf("file permissions too open (got %o, want 0600)", perm)
	}

	return nil
}
