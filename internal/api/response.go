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

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/testinsight/testinsight/internal/probe"
	"github.com/testinsight/testinsight/internal/secrets"
	"github.com/testinsight/testinsight/internal/settings"
)

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps settings errors to HTTP responses. Validation
// problems come back field-keyed; store and key corruption surface as 500s
// with a stable reason so the UI can direct the operator to recovery.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		verrs       settings.ValidationErrors
		corrupt     *settings.StoreCorruptError
		unsupported *settings.UnsupportedVersionError
		restoreErr  *settings.RestoreFormatError
		keyErr      *secrets.KeyCorruptError
		decErr      *secrets.DecryptionError
		probeErr    *probe.Error
	)

	switch {
	case errors.As(err, &probeErr):
		status := http.StatusBadGateway
		if probeErr.Kind == probe.KindMisconfigured {
			status = http.StatusBadRequest
		}
		WriteError(w, status, probeErr.Message)
	// Checked before ValidationErrors: a restore failure may wrap the
	// validation problems found inside the payload.
	case errors.As(err, &restoreErr):
		WriteError(w, http.StatusBadRequest, restoreErr.Error())
	case errors.As(err, &verrs):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verrs,
		})
	case errors.As(err, &unsupported):
		WriteError(w, http.StatusInternalServerError, unsupported.Error())
	case errors.As(err, &corrupt):
		WriteError(w, http.StatusInternalServerError, "settings file is corrupt, restore a backup or reset")
	case errors.As(err, &keyErr):
		WriteError(w, http.StatusInternalServerError, "encryption key is corrupt, stored credentials are unrecoverable without it")
	case errors.As(err, &decErr):
		WriteError(w, http.StatusInternalServerError, "stored credential could not be decrypted")
	case errors.Is(err, settings.ErrLockTimeout):
		WriteError(w, http.StatusConflict, "settings are locked by another process, try again")
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
