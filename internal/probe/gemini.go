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

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/testinsight/testinsight/internal/log"
	"github.com/testinsight/testinsight/pkg/httpclient"
)

const defaultGeminiAPI = "https://generativelanguage.googleapis.com"

// nonGenerationKeywords marks model families that cannot serve failure
// analysis. Matched against the lowercased model name.
var nonGenerationKeywords = []string{
	"embedding", "embed", "imagen", "imagetext",
	"vision", "video", "audio", "search", "retrieval", "codechat",
}

// ModelInfo describes one generation model available to the configured key.
type ModelInfo struct {
	Name             string `json:"name"`
	DisplayName      string `json:"display_name,omitempty"`
	Description      string `json:"description,omitempty"`
	Version          string `json:"version,omitempty"`
	InputTokenLimit  int    `json:"input_token_limit,omitempty"`
	OutputTokenLimit int    `json:"output_token_limit,omitempty"`
}

// GeminiClient probes the Gemini API and lists usable generation models.
type GeminiClient struct {
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string

	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates a Gemini prober.
func NewGeminiClient(timeout time.Duration, logger *slog.Logger) *GeminiClient {
	return &GeminiClient{BaseURL: defaultGeminiAPI, timeout: timeout, logger: logger}
}

// Probe verifies the API key by listing models; a key that can list models
// can generate.
func (c *GeminiClient) Probe(ctx context.Context, cfg AIConfig) error {
	_, err := c.ListModels(ctx, cfg)
	return err
}

// geminiModel mirrors the ListModels response entry.
type geminiModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	Description                string   `json:"description"`
	Version                    string   `json:"version"`
	InputTokenLimit            int      `json:"inputTokenLimit"`
	OutputTokenLimit           int      `json:"outputTokenLimit"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

type geminiModelList struct {
	Models        []geminiModel `json:"models"`
	NextPageToken string        `json:"nextPageToken"`
}

// ListModels fetches every model visible to the key and filters it down to
// text generation models. Results are sorted by name.
func (c *GeminiClient) ListModels(ctx context.Context, cfg AIConfig) ([]ModelInfo, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: KindMisconfigured, Message: "AI API key is not configured"}
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = c.timeout
	client, err := httpclient.New(clientCfg)
	if err != nil {
		return nil, &Error{Kind: KindMisconfigured, Message: "invalid client configuration", Cause: err}
	}

	var models []ModelInfo
	pageToken := ""
	for {
		page, err := c.fetchPage(ctx, client, cfg.APIKey, pageToken)
		if err != nil {
			return nil, err
		}

		for _, m := range page.Models {
			if info, ok := toGenerationModel(m); ok {
				models = append(models, info)
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	c.logger.Debug("listed gemini models",
		"count", len(models), "key", log.SanitizeAPIKey(cfg.APIKey))
	return models, nil
}

func (c *GeminiClient) fetchPage(ctx context.Context, client *http.Client, apiKey, pageToken string) (*geminiModelList, error) {
	q := url.Values{}
	q.Set("key", apiKey)
	q.Set("pageSize", "50")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	endpoint := c.BaseURL + "/v1beta/models?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindMisconfigured, Message: "invalid Gemini API URL", Cause: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Gemini reports an invalid key as 400 with an API_KEY_INVALID detail.
		return nil, &Error{Kind: KindAuth, Message: "Gemini rejected the API key"}
	default:
		return nil, &Error{
			Kind:    KindBadResponse,
			Message: fmt.Sprintf("Gemini returned HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classify(ctx, err)
	}

	var page geminiModelList
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &Error{Kind: KindBadResponse, Message: "Gemini returned an unparseable response", Cause: err}
	}

	return &page, nil
}

// toGenerationModel filters out models that cannot generate text and strips
// the "models/" resource prefix.
func toGenerationModel(m geminiModel) (ModelInfo, bool) {
	if !supportsGeneration(m.SupportedGenerationMethods) {
		return ModelInfo{}, false
	}

	name := strings.TrimPrefix(m.Name, "models/")
	lower := strings.ToLower(name)
	for _, kw := range nonGenerationKeywords {
		if strings.Contains(lower, kw) {
			return ModelInfo{}, false
		}
	}

	return ModelInfo{
		Name:             name,
		DisplayName:      m.DisplayName,
		Description:      m.Description,
		Version:          m.Version,
		InputTokenLimit:  m.InputTokenLimit,
		OutputTokenLimit: m.OutputTokenLimit,
	}, true
}

func supportsGeneration(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" || m == "generateText" {
			return true
		}
	}
	return false
}
