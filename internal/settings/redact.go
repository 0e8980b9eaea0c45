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

import "strings"

// RedactedPlaceholder replaces configured secrets in documents returned to
// callers. It is deliberately opaque: no prefix, no length, no ciphertext.
// A client that sends the placeholder back on update supplies no usable
// plaintext, and the blank-preserving merge means a cleared-out placeholder
// never wipes the stored credential either.
const RedactedPlaceholder = "********"

// Redact returns a copy with every configured secret replaced by the
// placeholder. Unset secrets stay empty so clients can tell "configured"
// from "missing" without a separate status call.
func Redact(doc *Document) *Document {
	out := doc.Clone()
	for _, f := range secretFields {
		if f.get(out) != "" {
			f.set(out, RedactedPlaceholder)
		}
	}
	return out
}

// SecretStatus reports which secrets are configured, grouped by section
// ("jenkins", "github", "ai") and keyed by field name within it. The check
// is the stored value's presence; nothing is decrypted.
func SecretStatus(doc *Document) map[string]map[string]bool {
	status := make(map[string]map[string]bool)
	for _, f := range secretFields {
		section, field, _ := strings.Cut(f.key, ".")
		if status[section] == nil {
			status[section] = make(map[string]bool, 1)
		}
		status[section][field] = f.get(doc) != ""
	}
	return status
}
