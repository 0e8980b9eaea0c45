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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/testinsight/testinsight/pkg/httpclient"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubClient probes the GitHub API with a personal access token.
type GitHubClient struct {
	// BaseURL overrides the API endpoint, for GitHub Enterprise or tests.
	BaseURL string

	timeout time.Duration
	logger  *slog.Logger
}

// NewGitHubClient creates a GitHub prober against api.github.com.
func NewGitHubClient(timeout time.Duration, logger *slog.Logger) *GitHubClient {
	return &GitHubClient{BaseURL: defaultGitHubAPI, timeout: timeout, logger: logger}
}

// Probe issues GET /user with the token. A 200 proves the token is valid
// and usable.
func (c *GitHubClient) Probe(ctx context.Context, cfg GitHubConfig) error {
	if cfg.Token == "" {
		return &Error{Kind: KindMisconfigured, Message: "GitHub token is not configured"}
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = c.timeout
	client, err := httpclient.New(clientCfg)
	if err != nil {
		return &Error{Kind: KindMisconfigured, Message: "invalid client configuration", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/user", nil)
	if err != nil {
		return &Error{Kind: KindMisconfigured, Message: "invalid GitHub API URL", Cause: err}
	}
	req.Header.Set("Authorization", "token "+cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	c.logger.Debug("probing github", "url", c.BaseURL+"/user")

	resp, err := client.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Message: "GitHub rejected the token"}
	case resp.StatusCode == http.StatusForbidden:
		// Rate-limited or insufficient scope; either way the token itself
		// authenticated.
		return &Error{Kind: KindAuth, Message: "GitHub refused the request (rate limit or missing scope)"}
	default:
		return &Error{
			Kind:    KindBadResponse,
			Message: fmt.Sprintf("GitHub returned HTTP %d", resp.StatusCode),
		}
	}
}
