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
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "settings.json"))
}

func TestStore_LoadMissingFileReturnsDefaults(t *testing.T) {
	s := testStore(t)

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Defaults()
	if doc.AI.Model != want.AI.Model {
		t.Errorf("model = %q, want %q", doc.AI.Model, want.AI.Model)
	}
	if !doc.Jenkins.VerifySSL {
		t.Error("verify_ssl default must be true")
	}
	if doc.Preferences.Theme != ThemeSystem {
		t.Errorf("theme = %q, want %q", doc.Preferences.Theme, ThemeSystem)
	}
	if !doc.LastUpdated.IsZero() {
		t.Error("fresh install must have zero LastUpdated")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)

	doc := Defaults()
	doc.Jenkins.URL = "https://ci.example.com"
	doc.Jenkins.Username = "builder"
	doc.Jenkins.APIToken = "aesgcm:c29tZS1jaXBoZXJ0ZXh0"
	doc.Preferences.Theme = ThemeDark

	if err := s.Save(doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Jenkins.URL != doc.Jenkins.URL {
		t.Errorf("url = %q, want %q", got.Jenkins.URL, doc.Jenkins.URL)
	}
	if got.Jenkins.APIToken != doc.Jenkins.APIToken {
		t.Error("ciphertext did not survive the round trip")
	}
	if got.Preferences.Theme != ThemeDark {
		t.Errorf("theme = %q, want dark", got.Preferences.Theme)
	}
}

func TestStore_SaveFilePermissions(t *testing.T) {
	s := testStore(t)

	if err := s.Save(Defaults()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file permissions = %o, want 0600", perm)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"truncated json", `{"jenkins": {"url":`},
		{"not json", "theme = dark"},
		{"wrong type", `{"ai": {"max_tokens": "lots"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			if err := os.WriteFile(s.Path(), []byte(tt.contents), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			_, err := s.Load()
			var corrupt *StoreCorruptError
			if !errors.As(err, &corrupt) {
				t.Errorf("Load() error = %v, want *StoreCorruptError", err)
			}

			// The corrupt file must survive for inspection.
			if _, statErr := os.Stat(s.Path()); statErr != nil {
				t.Errorf("corrupt file was removed: %v", statErr)
			}
		})
	}
}

func TestStore_NewerSchemaRefused(t *testing.T) {
	s := testStore(t)

	doc := Defaults()
	doc.SchemaVersion = SchemaVersion + 1
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err = s.Load()
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Load() error = %v, want *UnsupportedVersionError", err)
	}
	if unsupported.Version != SchemaVersion+1 {
		t.Errorf("Version = %d, want %d", unsupported.Version, SchemaVersion+1)
	}
}

func TestStore_LegacyUnversionedFileUpgraded(t *testing.T) {
	s := testStore(t)

	// A pre-versioning file has no schema_version field at all.
	legacy := `{"jenkins": {"url": "https://ci.example.com", "verify_ssl": true}}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", doc.SchemaVersion, SchemaVersion)
	}
	if doc.Jenkins.URL != "https://ci.example.com" {
		t.Errorf("url = %q, legacy data lost", doc.Jenkins.URL)
	}
}

func TestStore_SaveLeavesNoTempFile(t *testing.T) {
	s := testStore(t)

	if err := s.Save(Defaults()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestStore_WithLock(t *testing.T) {
	s := testStore(t)

	called := false
	err := s.WithLock(func() error {
		called = true
		return s.Save(Defaults())
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !called {
		t.Error("WithLock did not run the function")
	}
	if s.lockFile != nil {
		t.Error("lock not released after WithLock")
	}
}
