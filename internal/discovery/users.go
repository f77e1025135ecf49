// Copyright (c) 2026 John Earle
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

// Package discovery resolves which mailboxes of a tenant get scanned.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/killswitch/scanner/internal/config"
)

// graphUser is the subset of a Graph user the scanner needs.
type graphUser struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type usersPage struct {
	Value    []graphUser `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// Resolver lists a tenant's mailboxes.
type Resolver struct {
	baseURL string
}

// NewResolver creates a resolver against a Graph base URL.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Mailboxes returns the addresses to scan for a tenant. A configured user
// list is used as is; otherwise licensed users with a mailbox are listed
// from Graph. Excluded addresses are dropped either way, case-insensitively.
func (r *Resolver) Mailboxes(ctx context.Context, httpClient *http.Client, tenant config.TenantConfig) ([]string, error) {
	excluded := make(map[string]bool, len(tenant.ExcludeUsers))
	for _, u := range tenant.ExcludeUsers {
		excluded[strings.ToLower(u)] = true
	}
	keep := func(out []string, addr string) []string {
		if addr == "" || excluded[strings.ToLower(addr)] {
			return out
		}
		return append(out, addr)
	}

	var out []string
	if len(tenant.Users) > 0 {
		for _, u := range tenant.Users {
			out = keep(out, u)
		}
		return out, nil
	}

	slog.Info("discovering mailboxes", "tenant", tenant.Alias)

	params := url.Values{}
	params.Set("$filter", "assignedLicenses/$count ne 0")
	params.Set("$count", "true")
	params.Set("$select", "mail,userPrincipalName")
	params.Set("$top", "100")

	for next := r.baseURL + "/users?" + params.Encode(); next != ""; {
		page, err := r.fetchPage(ctx, httpClient, next)
		if err != nil {
			return nil, err
		}
		for _, u := range page.Value {
			out = keep(out, u.Mail)
		}
		next = page.NextLink
	}

	slog.Info("mailbox discovery complete", "tenant", tenant.Alias, "mailboxes", len(out))
	return out, nil
}

func (r *Resolver) fetchPage(ctx context.Context, httpClient *http.Client, pageURL string) (*usersPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build users request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ConsistencyLevel", "eventual")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph /users returned HTTP %d", resp.StatusCode)
	}

	var page usersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	return &page, nil
}
