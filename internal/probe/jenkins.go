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
	"strings"
	"time"

	"github.com/testinsight/testinsight/pkg/httpclient"
)

// JenkinsClient probes a Jenkins server with basic auth against the JSON
// API root.
type JenkinsClient struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewJenkinsClient creates a Jenkins prober.
func NewJenkinsClient(timeout time.Duration, logger *slog.Logger) *JenkinsClient {
	return &JenkinsClient{timeout: timeout, logger: logger}
}

// Probe issues GET {url}/api/json with the username and API token. A 200
// means the server is up and the credential works.
func (c *JenkinsClient) Probe(ctx context.Context, cfg JenkinsConfig) error {
	if cfg.URL == "" {
		return &Error{Kind: KindMisconfigured, Message: "Jenkins URL is not configured"}
	}
	if cfg.Username == "" || cfg.APIToken == "" {
		return &Error{Kind: KindMisconfigured, Message: "Jenkins credentials are not configured"}
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = c.timeout
	clientCfg.InsecureSkipVerify = !cfg.VerifySSL
	client, err := httpclient.New(clientCfg)
	if err != nil {
		return &Error{Kind: KindMisconfigured, Message: "invalid client configuration", Cause: err}
	}

	endpoint := strings.TrimRight(cfg.URL, "/") + "/api/json"
	c.logger.Debug("probing jenkins", "url", endpoint, "verify_ssl", cfg.VerifySSL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Kind: KindMisconfigured, Message: "invalid Jenkins URL", Cause: err}
	}
	req.SetBasicAuth(cfg.Username, cfg.APIToken)

	resp, err := client.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuth, Message: "Jenkins rejected the username or API token"}
	default:
		return &Error{
			Kind:    KindBadResponse,
			Message: fmt.Sprintf("Jenkins returned HTTP %d", resp.StatusCode),
		}
	}
}
