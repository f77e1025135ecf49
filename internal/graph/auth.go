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

package graph

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// Scope requests the application permissions granted to the app
// registration.
const Scope = "https://graph.microsoft.com/.default"

// TokenURL returns the Entra ID token endpoint for a tenant.
func TokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// NewTenantClient returns an HTTP client that authenticates with the
// client-credentials flow and refreshes its token as needed. An empty
// tokenURL uses the tenant's Entra ID endpoint.
func NewTenantClient(ctx context.Context, tenantID, clientID, clientSecret, tokenURL string) *http.Client {
	if tokenURL == "" {
		tokenURL = TokenURL(tenantID)
	}
	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{Scope},
	}
	return creds.Client(ctx)
}
