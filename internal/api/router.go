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

// Package api provides the HTTP API for the TestInsight daemon: settings
// CRUD, secret status, connection tests, backup and restore, and model
// discovery.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/testinsight/testinsight/internal/settings"
)

// maxBodySize caps request bodies. Settings documents and backups are tiny;
// anything bigger is not ours.
const maxBodySize = 1 << 20

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// Router wraps an http.ServeMux with the settings API routes.
type Router struct {
	mux       *http.ServeMux
	config    RouterConfig
	svc       *settings.Service
	logger    *slog.Logger
	testLimit *rate.Limiter
}

// NewRouter creates the API router around a settings service.
func NewRouter(cfg RouterConfig, svc *settings.Service, logger *slog.Logger) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		svc:    svc,
		logger: logger,

		// One probe per second sustained, short bursts allowed.
		testLimit: rate.NewLimiter(rate.Limit(1), 5),
	}
	r.routes()
	return r
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.HandleFunc("GET /v1/settings", r.handleGetSettings)
	r.mux.HandleFunc("PUT /v1/settings", r.handleUpdateSettings)
	r.mux.HandleFunc("POST /v1/settings/reset", r.handleReset)
	r.mux.HandleFunc("GET /v1/settings/validate", r.handleValidate)
	r.mux.HandleFunc("GET /v1/settings/secrets/status", r.handleSecretStatus)
	r.mux.HandleFunc("POST /v1/settings/backup", r.handleBackup)
	r.mux.HandleFunc("POST /v1/settings/restore", r.handleRestore)

	r.mux.HandleFunc("POST /v1/settings/test/{service}", withRateLimit(r.testLimit, r.handleTestConnection))
	r.mux.HandleFunc("POST /v1/settings/test", withRateLimit(r.testLimit, r.handleTestAll))

	r.mux.HandleFunc("GET /v1/ai/models", r.handleListModels)
}

// Handler returns the router as an http.Handler with logging middleware.
func (r *Router) Handler() http.Handler {
	return withLogging(r.logger, r.mux)
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}

func (r *Router) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	doc, err := r.svc.Get()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) {
	var upd settings.Update
	if err := decodeBody(req, &upd); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := r.svc.Update(&upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (r *Router) handleReset(w http.ResponseWriter, _ *http.Request) {
	backupPath, doc, err := r.svc.Reset()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"settings": doc,
		"backup":   backupPath,
	})
}

func (r *Router) handleValidate(w http.ResponseWriter, _ *http.Request) {
	verrs, err := r.svc.ValidateCurrent()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"valid": verrs == nil}
	if verrs != nil {
		resp["fields"] = verrs
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) handleSecretStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := r.svc.SecretStatus()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"secrets": status})
}

func (r *Router) handleBackup(w http.ResponseWriter, _ *http.Request) {
	payload, err := r.svc.Backup()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"testinsight-settings-backup.json\"")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (r *Router) handleRestore(w http.ResponseWriter, req *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	doc, err := r.svc.Restore(payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

// handleTestConnection probes one service. Unsaved form values may ride
// along in the body; a connection failure is a 200 with success=false.
func (r *Router) handleTestConnection(w http.ResponseWriter, req *http.Request) {
	service := req.PathValue("service")

	var override *settings.Update
	if req.ContentLength != 0 {
		override = &settings.Update{}
		if err := decodeBody(req, override); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := r.svc.TestConnection(req.Context(), service, override)
	WriteJSON(w, http.StatusOK, result)
}

func (r *Router) handleTestAll(w http.ResponseWriter, req *http.Request) {
	results := r.svc.TestAll(req.Context())
	WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (r *Router) handleListModels(w http.ResponseWriter, req *http.Request) {
	models, err := r.svc.ListModels(req.Context(), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"models": models})
}

// decodeBody parses a JSON request body, rejecting unknown fields so typos
// like "api_tokn" fail loudly instead of silently not applying.
func decodeBody(req *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
