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

package extract

import (
	"regexp"

	"github.com/killswitch/scanner/internal/models"
)

// Pattern lists are ordered: earlier entries take precedence over later,
// more general ones.

var trialKeywords = []string{
	"trial", "free trial", "trial period", "trial ends", "trial expires",
}

var trialPatterns = mustCompileAll(
	`trial\s+(?:period\s+)?(?:ends?|expires?|ending)`,
	`free\s+trial`,
	`(?:your\s+)?trial\s+(?:will\s+)?(?:end|expire)`,
	`trial\s+conversion`,
	`(?:trial\s+)?(?:ends?|expires?)\s+(?:in\s+)?(\d+)\s+days?`,
	`(?:free\s+)?trial\s+(?:period\s+)?(?:of\s+)?(\d+)\s+days?`,
)

var dayCountPattern = regexp.MustCompile(`(\d+)\s+days?`)

// Price patterns run against lower-cased text.
var pricePatterns = mustCompileAll(
	`[$£€₦]\s*(\d+(?:\.\d{2})?)`,
	`(\d+(?:\.\d{2})?)\s*(?:usd|gbp|eur|ngn)`,
	`(?:total|amount|price|cost):\s*[$£€₦]?\s*(\d+(?:\.\d{2})?)`,
	`(?:billed|charged)\s+[$£€₦]?\s*(\d+(?:\.\d{2})?)`,
)

var renewalPatterns = mustCompileAll(
	`(?i)(?:next\s+)?(?:bill|charge|payment|renewal)\s+(?:date|on):\s*([A-Za-z]+\s+\d{1,2},?\s+\d{4})`,
	`(?i)renew(?:s|al)?\s+(?:on\s+)?([A-Za-z]+\s+\d{1,2},?\s+\d{4})`,
	`(?i)(?:subscription\s+)?renew(?:s|al)?\s+([A-Za-z]+\s+\d{1,2})`,
	`(?i)(?:your\s+)?(?:next\s+)?payment\s+(?:is\s+)?(?:due\s+)?(?:on\s+)?([A-Za-z]+\s+\d{1,2})`,
)

var cancelLinkPattern = regexp.MustCompile(`(?i)https?://[^\s<>"]+(?:cancel|unsubscribe|settings|account|manage)[^\s<>"]*`)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

var priceChangePhrases = []string{
	"price increase", "price change", "new price", "rate change",
	"subscription cost", "price update", "increasing to",
}

// emailTypeRules is evaluated top to bottom; the first group with a hit
// decides the type.
var emailTypeRules = []struct {
	keywords []string
	typ      models.EmailType
}{
	{[]string{"trial end", "trial expir", "trial convert"}, models.EmailTrialEnding},
	{[]string{"receipt", "payment received", "invoice", "charged"}, models.EmailPaymentConfirmation},
	{[]string{"renewal", "renew", "upcoming charge"}, models.EmailRenewalReminder},
	{[]string{"welcome", "getting started", "thank you for subscribing"}, models.EmailNewSubscription},
	{[]string{"price increase", "price change", "new rate"}, models.EmailPriceChange},
	{[]string{"cancel", "unsubscribe"}, models.EmailCancellation},
}

var cardPattern = regexp.MustCompile(`(?:card|visa|mastercard|amex).*?(\d{4})`)

var bankKeywords = []string{"bank account", "direct debit", "ach"}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}
