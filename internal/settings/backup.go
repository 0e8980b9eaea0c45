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
	"fmt"
	"time"
)

// backupTimeFormat names backup files sortably: settings_backup_<ts>.json.
const backupTimeFormat = "20060102_150405"

// BackupDocument wraps a settings document for export. Secrets stay
// encrypted: a backup restores cleanly on the same installation (same key)
// and is useless without it.
type BackupDocument struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Settings      *Document `json:"settings"`
}

// encodeBackup serializes a document into a backup payload.
func encodeBackup(doc *Document, now time.Time) ([]byte, error) {
	payload := BackupDocument{
		SchemaVersion: SchemaVersion,
		CreatedAt:     now.UTC(),
		Settings:      doc,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeBackup parses and shape-checks a backup payload. Anything that is
// not a well-formed backup of a supported version yields
// *RestoreFormatError.
func decodeBackup(data []byte) (*Document, error) {
	var payload BackupDocument
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &RestoreFormatError{Reason: "not valid JSON", Cause: err}
	}

	if payload.Settings == nil {
		return nil, &RestoreFormatError{Reason: "missing settings section"}
	}
	if payload.SchemaVersion > SchemaVersion {
		return nil, &RestoreFormatError{
			Reason: fmt.Sprintf("schema version %d is newer than supported version %d",
				payload.SchemaVersion, SchemaVersion),
		}
	}

	doc := payload.Settings.Clone()
	switch {
	case doc.SchemaVersion == 0:
		doc.SchemaVersion = SchemaVersion
	case doc.SchemaVersion > SchemaVersion:
		// The wrapper version alone is not enough: a payload whose inner
		// document is stamped with a future version would restore fine and
		// then fail every subsequent load.
		return nil, &RestoreFormatError{
			Reason: fmt.Sprintf("settings schema version %d is newer than supported version %d",
				doc.SchemaVersion, SchemaVersion),
		}
	}

	return doc, nil
}

// backupFilename returns the timestamped file name for an automatic backup.
func backupFilename(now time.Time) string {
	return fmt.Sprintf("settings_backup_%s.json", now.UTC().Format(backupTimeFormat))
}
