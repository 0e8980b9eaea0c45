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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout is returned when the cross-process file lock cannot be
// acquired within the timeout.
var ErrLockTimeout = errors.New("settings locked by another process")

const lockTimeout = 5 * time.Second

// Store reads and writes the settings document at a fixed path. Writes are
// atomic (temp file plus rename) and the file is created with 0600
// permissions. Cross-process exclusion uses an flock on a sibling .lock
// file; in-process callers serialize through Service, not Store.
type Store struct {
	path     string
	lockFile *os.File
}

// NewStore creates a store for the settings file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings document. A missing file yields Defaults, never an
// error: a fresh install behaves like factory settings. A file that exists
// but cannot be parsed yields *StoreCorruptError, and a file written by a
// newer release yields *UnsupportedVersionError; neither is ever silently
// replaced with defaults.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StoreCorruptError{Path: s.path, Cause: err}
	}

	if doc.SchemaVersion > SchemaVersion {
		return nil, &UnsupportedVersionError{
			Path:      s.path,
			Version:   doc.SchemaVersion,
			Supported: SchemaVersion,
		}
	}
	if doc.SchemaVersion == 0 {
		// Pre-versioning file: same shape, just unstamped. Upgraded in
		// memory; the stamp lands on disk with the next save.
		doc.SchemaVersion = SchemaVersion
	}

	return &doc, nil
}

// Save writes the document atomically: marshal, write a temp file in the
// same directory, then rename over the target. Readers never observe a
// partial document.
func (s *Store) Save(doc *Document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	data = append(data, '\n')

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// Lock acquires an exclusive cross-process lock on the settings file.
// Returns ErrLockTimeout if another process holds it past the timeout.
func (s *Store) Lock() error {
	lockPath := s.path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(lockTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			s.lockFile = lockFile
			return nil
		}

		if time.Now().After(deadline) {
			lockFile.Close()
			return ErrLockTimeout
		}

		<-ticker.C
	}
}

// Unlock releases the cross-process lock.
func (s *Store) Unlock() error {
	if s.lockFile == nil {
		return nil
	}

	if err := syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		s.lockFile.Close()
		s.lockFile = nil
		return fmt.Errorf("failed to unlock: %w", err)
	}

	if err := s.lockFile.Close(); err != nil {
		s.lockFile = nil
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	s.lockFile = nil
	return nil
}

// WithLock runs fn while holding the cross-process lock.
func (s *Store) WithLock(fn func() error) error {
	if err := s.Lock(); err != nil {
		return err
	}
	defer s.Unlock()

	return fn()
}
