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
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors maps a field path such as "jenkins.url" or "ai.max_tokens"
// to the problems found with it. A nil or empty map means the document is
// valid. Messages never contain secret values.
type ValidationErrors map[string][]string

// Add records a problem for a field.
func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

// Error implements the error interface with a deterministic field order.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("settings validation failed:")
	for _, field := range fields {
		for _, msg := range v[field] {
			fmt.Fprintf(&b, " %s: %s;", field, msg)
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

// StoreCorruptError indicates the settings file exists but cannot be parsed
// as a settings document. The stored data is preserved for inspection; the
// caller decides whether to restore a backup or reset.
type StoreCorruptError struct {
	// Path is the settings file location.
	Path string

	// Cause is the parse or read failure.
	Cause error
}

// Error implements the error interface.
func (e *StoreCorruptError) Error() string {
	return fmt.Sprintf("settings file at %s is corrupt: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StoreCorruptError) Unwrap() error {
	return e.Cause
}

// UnsupportedVersionError indicates the settings file was written by a newer
// release than this binary understands.
type UnsupportedVersionError struct {
	Path      string
	Version   int
	Supported int
}

// Error implements the error interface.
func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("settings file at %s has schema version %d, this build supports up to %d",
		e.Path, e.Version, e.Supported)
}

// RestoreFormatError indicates a backup payload handed to Restore is not a
// valid backup document.
type RestoreFormatError struct {
	// Reason explains what is wrong with the payload.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *RestoreFormatError) Error() string {
	return fmt.Sprintf("invalid backup payload: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RestoreFormatError) Unwrap() error {
	return e.Cause
}
