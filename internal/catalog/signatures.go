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

package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/models"
)

var builtin = []Signature{
	// Video
	{Name: "Netflix", Category: models.CategoryVideo, CancelURL: "https://www.netflix.com/cancelplan", Keywords: []string{"netflix"}},
	{Name: "Disney+", Category: models.CategoryVideo, CancelURL: "https://www.disneyplus.com/account/subscription", Keywords: []string{"disney+"}},
	{Name: "Amazon Prime Video", Category: models.CategoryVideo, CancelURL: "https://www.amazon.com/gp/video/settings", Keywords: []string{"amazon prime video", "prime video"}},
	{Name: "Hulu", Category: models.CategoryVideo, CancelURL: "https://secure.hulu.com/account", Keywords: []string{"hulu"}},
	{Name: "HBO Max", Category: models.CategoryVideo, CancelURL: "https://play.hbomax.com/account/billing", Keywords: []string{"hbo max", "max"}},
	{Name: "Showmax", Category: models.CategoryVideo, CancelURL: "https://www.showmax.com/account/subscription", Keywords: []string{"showmax"}},
	{Name: "Apple TV+", Category: models.CategoryVideo, CancelURL: "https://support.apple.com/en-us/HT202039", Keywords: []string{"apple tv"}},
	{Name: "Paramount+", Category: models.CategoryVideo, CancelURL: "https://www.paramountplus.com/account/", Keywords: []string{"paramount+"}},

	// Music
	{Name: "Spotify", Category: models.CategoryMusic, CancelURL: "https://www.spotify.com/account/subscription/", Keywords: []string{"spotify"}},
	{Name: "Apple Music", Category: models.CategoryMusic, CancelURL: "https://support.apple.com/en-us/HT202039", Keywords: []string{"apple music"}},
	{Name: "YouTube Premium", Category: models.CategoryMusic, CancelURL: "https://www.youtube.com/paid_memberships", Keywords: []string{"youtube premium"}},
	{Name: "Tidal", Category: models.CategoryMusic, CancelURL: "https://account.tidal.com/subscription", Keywords: []string{"tidal"}},
	{Name: "Deezer", Category: models.CategoryMusic, CancelURL: "https://www.deezer.com/account/subscription", Keywords: []string{"deezer"}},
	{Name: "Audiomack (Premium)", Category: models.CategoryMusic, CancelURL: "https://audiomack.com/settings", Keywords: []string{"audiomack"}},

	// Work/AI
	{Name: "ChatGPT Plus", Category: models.CategoryWorkAI, CancelURL: "https://chat.openai.com/#settings/billing", Keywords: []string{"chatgpt", "openai"}},
	{Name: "Adobe Creative Cloud", Category: models.CategoryWorkAI, CancelURL: "https://account.adobe.com/plans", Keywords: []string{"adobe", "creative cloud", "lightroom", "photoshop"}},
	{Name: "Microsoft 365", Category: models.CategoryWorkAI, CancelURL: "https://account.microsoft.com/services", Keywords: []string{"microsoft 365", "office 365"}},
	{Name: "Canva", Category: models.CategoryWorkAI, CancelURL: "https://www.canva.com/settings/billing-and-plans", Keywords: []string{"canva"}},
	{Name: "LinkedIn Premium", Category: models.CategoryWorkAI, CancelURL: "https://www.linkedin.com/premium/manage/", Keywords: []string{"linkedin premium"}},
	{Name: "GitHub Copilot", Category: models.CategoryWorkAI, CancelURL: "https://github.com/settings/copilot", Keywords: []string{"github copilot"}},
	{Name: "Zoom", Category: models.CategoryWorkAI, CancelURL: "https://zoom.us/billing/plan", Keywords: []string{"zoom"}},
	{Name: "Slack", Category: models.CategoryWorkAI, CancelURL: "https://slack.com/help/articles/204212133-Cancel-your-Slack-subscription", Keywords: []string{"slack"}},

	// Lifestyle/Health
	{Name: "Calm", Category: models.CategoryLifestyle, CancelURL: "https://www.calm.com/settings/subscription", Keywords: []string{"calm"}},
	{Name: "Headspace", Category: models.CategoryLifestyle, CancelURL: "https://www.headspace.com/settings/subscription", Keywords: []string{"headspace"}},
	{Name: "Peloton", Category: models.CategoryLifestyle, CancelURL: "https://www.onepeloton.com/settings/subscriptions", Keywords: []string{"peloton"}},
	{Name: "Strava", Category: models.CategoryLifestyle, CancelURL: "https://www.strava.com/settings/subscription", Keywords: []string{"strava"}},
	{Name: "Duolingo", Category: models.CategoryLifestyle, CancelURL: "https://www.duolingo.com/settings/plus", Keywords: []string{"duolingo"}},
	{Name: "Gym Pass", Category: models.CategoryLifestyle, CancelURL: "https://gympass.com/us/settings/subscription", Keywords: []string{"gympass"}},

	// Storage/Utilities
	{Name: "Google One", Category: models.CategoryStorage, CancelURL: "https://one.google.com/settings", Keywords: []string{"google one"}},
	{Name: "iCloud", Category: models.CategoryStorage, CancelURL: "https://support.apple.com/en-us/HT202039", Keywords: []string{"icloud"}},
	{Name: "Dropbox", Category: models.CategoryStorage, CancelURL: "https://www.dropbox.com/account/plan", Keywords: []string{"dropbox"}},
	{Name: "Shopify", Category: models.CategoryStorage, CancelURL: "https://www.shopify.com/admin/settings/billing", Keywords: []string{"shopify"}},
	{Name: "Squarespace", Category: models.CategoryStorage, CancelURL: "https://www.squarespace.com/config/billing/subscriptions", Keywords: []string{"squarespace"}},
}

// KnownCancelURL pairs a vendor keyword with its fixed cancellation page.
type KnownCancelURL struct {
	Keyword string
	URL     string
}

// KnownCancelURLs is the short list of major vendors whose cancellation
// page is known regardless of what an email body links to. Checked in
// order; the first keyword contained in the vendor name wins.
var KnownCancelURLs = []KnownCancelURL{
	{Keyword: "netflix", URL: "https://www.netflix.com/cancelplan"},
	{Keyword: "spotify", URL: "https://www.spotify.com/account/subscription/"},
	{Keyword: "apple", URL: "https://support.apple.com/en-us/HT202039"},
	{Keyword: "amazon", URL: "https://www.amazon.com/gp/primecentral"},
	{Keyword: "disney", URL: "https://www.disneyplus.com/account"},
	{Keyword: "hulu", URL: "https://secure.hulu.com/account"},
	{Keyword: "youtube", URL: "https://www.youtube.com/paid_memberships"},
	{Keyword: "chatgpt", URL: "https://platform.openai.com/account/billing"},
	{Keyword: "github", URL: "https://github.com/settings/billing"},
	{Keyword: "adobe", URL: "https://account.adobe.com/plans"},
}

// LookupCancelURL returns the known cancellation URL for a vendor name.
func LookupCancelURL(vendor string) (string, bool) {
	lower := strings.ToLower(vendor)
	for _, k := range KnownCancelURLs {
		if strings.Contains(lower, k.Keyword) {
			return k.URL, true
		}
	}
	return "", false
}

var (
	ten   = decimal.NewFromInt(10)
	fifty = decimal.NewFromInt(50)
)

// OptimizationTip suggests a cheaper way to keep a service, with the
// estimated monthly saving in USD. A zero saving means no tip applies.
func OptimizationTip(name string, usdPrice decimal.Decimal) (string, decimal.Decimal) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "netflix") && usdPrice.GreaterThan(ten):
		return "Switch to Standard (Non-HD) to save $6.50", decimal.RequireFromString("6.50")
	case strings.Contains(n, "spotify"):
		return "Get the Student or Duo plan", decimal.NewFromInt(3)
	case strings.Contains(n, "gym"), strings.Contains(n, "fitness"):
		return "Try Pay-as-you-go instead", decimal.NewFromInt(15)
	case usdPrice.GreaterThan(fifty):
		return "Review annual billing options", usdPrice.Mul(decimal.RequireFromString("0.15"))
	}
	return "No optimizations found", decimal.Zero
}
