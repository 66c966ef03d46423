/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPFetcher fetches bundles from the portal API at {BaseURL}/api/bundle/{gid}.
type HTTPFetcher struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher. baseURL may include a trailing slash; it will be normalized.
func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// bundleResult is the service response: either code or an error message.
type bundleResult struct {
	Code        string         `json:"code"`
	Frontmatter map[string]any `json:"frontmatter"`
	Error       string         `json:"error"`
}

// GetBundle implements Fetcher.
func (f *HTTPFetcher) GetBundle(ctx context.Context, gid string) (Bundle, error) {
	if strings.TrimSpace(gid) == "" {
		return Bundle{}, errors.New("empty gid")
	}
	u, err := url.Parse(f.BaseURL + "/api/bundle/" + url.PathEscape(gid))
	if err != nil {
		return Bundle{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Bundle{}, err
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return Bundle{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Bundle{}, fmt.Errorf("read body: %w", err)
	}
	var res bundleResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &res); err != nil && resp.StatusCode < 300 {
			return Bundle{}, fmt.Errorf("decode bundle: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if res.Error != "" {
			return Bundle{}, fmt.Errorf("server %s: %s", resp.Status, res.Error)
		}
		return Bundle{}, fmt.Errorf("server GET %s: %s", u.Path, resp.Status)
	}
	if res.Error != "" {
		return Bundle{}, errors.New(res.Error)
	}
	return Bundle{Code: res.Code, Frontmatter: res.Frontmatter}, nil
}
