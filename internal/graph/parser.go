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
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/killswitch/scanner/internal/models"
)

// graphMessage represents the relevant fields from a Graph API message response.
type graphMessage struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	ReceivedDateTime string `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

var (
	scriptStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockTag    = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])\s*/?>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
	hrefAttr    = regexp.MustCompile(`(?i)<a\s[^>]*href\s*=\s*"([^"]+)"[^>]*>`)
	blankRun    = regexp.MustCompile(`[ \t]+`)
	newlineRun  = regexp.MustCompile(`\n{3,}`)
)

// parseMessage converts a Graph API message response into an EmailMessage.
func parseMessage(body io.Reader, userID string) (*models.EmailMessage, error) {
	var msg graphMessage
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode graph message: %w", err)
	}

	received, err := time.Parse(time.RFC3339, msg.ReceivedDateTime)
	if err != nil {
		received = time.Now().UTC()
	}

	content := msg.Body.Content
	if strings.EqualFold(msg.Body.ContentType, "html") {
		content = StripHTML(content)
	}

	sender := msg.From.EmailAddress.Name
	if sender == "" {
		sender = msg.From.EmailAddress.Address
	}

	return &models.EmailMessage{
		MessageID:         msg.ID,
		UserID:            userID,
		Subject:           msg.Subject,
		Body:              content,
		SenderDisplayName: sender,
		SenderAddress:     msg.From.EmailAddress.Address,
		ReceivedAt:        received.UTC(),
	}, nil
}

// StripHTML reduces an HTML body to plain text. Link targets are kept
// inline so cancellation URLs survive.
func StripHTML(s string) string {
	s = scriptStyle.ReplaceAllString(s, "")
	s = hrefAttr.ReplaceAllString(s, " $1 ")
	s = blockTag.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = blankRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
