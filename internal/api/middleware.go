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
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/testinsight/testinsight/internal/log"
)

// requestIDHeader carries the request ID back to the client for log
// correlation.
const requestIDHeader = "X-Request-ID"

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging assigns each request an ID and logs method, path, status, and
// duration. Query strings are never logged; settings endpoints do not take
// secrets in URLs, and this keeps it that way by construction.
func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		log.WithRequestID(logger, requestID).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
		)
	})
}

// withRateLimit bounds how fast a handler can be hit. Connection tests fan
// out to external services, so a runaway UI must not turn the daemon into a
// probe cannon.
func withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			WriteError(w, http.StatusTooManyRequests, "too many connection tests, slow down")
			return
		}
		next(w, r)
	}
}
