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

// Package graph lists and fetches mailbox messages from the Microsoft
// Graph API. Callers supply the tenant's OAuth2 HTTP client per call.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/killswitch/scanner/internal/models"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to the Graph messages endpoints.
type Client struct {
	baseURL   string
	pageDelay time.Duration // delay between pages to avoid throttling
}

// NewClient creates a Graph client. A zero pageDelay defaults to 500ms.
func NewClient(baseURL string, pageDelay time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageDelay == 0 {
		pageDelay = 500 * time.Millisecond
	}
	return &Client{baseURL: baseURL, pageDelay: pageDelay}
}

// messagesResponse represents a page of the /messages list response.
type messagesResponse struct {
	Value    []messageStub `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// messageStub is a minimal message from the list endpoint.
type messageStub struct {
	ID string `json:"id"`
}

// ListMessages returns the IDs of messages received by userID since the
// given time, newest first, following pagination links.
func (c *Client) ListMessages(ctx context.Context, httpClient *http.Client, userID string, since time.Time) ([]string, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$select", "id")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", "50")

	listURL := fmt.Sprintf("%s/users/%s/messages?%s", c.baseURL, url.PathEscape(userID), params.Encode())

	var ids []string
	pageCount := 0
	for nextURL := listURL; nextURL != ""; {
		if pageCount > 0 {
			select {
			case <-ctx.Done():
				return ids, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		page, err := c.fetchPage(ctx, httpClient, nextURL)
		if err != nil {
			return ids, fmt.Errorf("fetch page %d: %w", pageCount, err)
		}
		pageCount++

		slog.Debug("messages page fetched",
			"user", userID,
			"page", pageCount,
			"messages", len(page.Value),
		)

		for _, m := range page.Value {
			ids = append(ids, m.ID)
		}
		nextURL = page.NextLink
	}

	return ids, nil
}

// fetchPage retrieves a single page of messages from the list endpoint.
func (c *Client) fetchPage(ctx context.Context, httpClient *http.Client, pageURL string) (*messagesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "odata.maxpagesize=50")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("messages list error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("messages list returned HTTP %d", resp.StatusCode)
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	return &page, nil
}

// FetchMessage retrieves one message for userID. It returns nil, nil when
// the message no longer exists.
func (c *Client) FetchMessage(ctx context.Context, httpClient *http.Client, userID, messageID string) (*models.EmailMessage, error) {
	msgURL := fmt.Sprintf("%s/users/%s/messages/%s?$select=id,subject,from,body,receivedDateTime",
		c.baseURL, url.PathEscape(userID), url.PathEscape(messageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, msgURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "outlook.body-content-type=\"text\"")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)",
			"user", userID,
			"message_id", messageID,
		)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph API returned HTTP %d for message %s", resp.StatusCode, messageID)
	}

	msg, err := parseMessage(resp.Body, userID)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}
