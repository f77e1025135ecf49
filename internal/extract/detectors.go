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
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/models"
)

// DefaultTrialDays is assumed when a trial is detected but the text gives
// no day count.
const DefaultTrialDays = 7

func combine(subject, body string) string {
	return normalizeSpace(subject + " " + body)
}

// normalizeSpace maps non-ASCII whitespace (NBSP from &nbsp;, thin and
// narrow spaces) to ' ' so the patterns' \s sees it. ASCII whitespace,
// newlines included, is left alone.
func normalizeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII && unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DetectTrial reports whether the email is about a trial and, if so, how
// many days remain.
func DetectTrial(subject, body string) (bool, *int) {
	text := strings.ToLower(combine(subject, body))
	if !containsAny(text, trialKeywords) {
		return false, nil
	}

	for _, re := range trialPatterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		dm := dayCountPattern.FindStringSubmatch(m)
		if dm == nil {
			continue
		}
		if days, err := strconv.Atoi(dm[1]); err == nil {
			return true, &days
		}
	}

	days := DefaultTrialDays
	return true, &days
}

// ExtractPrice returns the first amount found by the ordered price
// patterns and the currency symbol inferred from the text. Both are absent
// when nothing matches.
func ExtractPrice(text string) (decimal.NullDecimal, string) {
	text = normalizeSpace(text)
	lower := strings.ToLower(text)
	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		price, err := decimal.NewFromString(m[1])
		if err != nil {
			continue
		}
		return decimal.NewNullDecimal(price), DetectCurrencySymbol(text)
	}
	return decimal.NullDecimal{}, ""
}

// DetectCurrencySymbol infers the currency of text from symbols or codes,
// defaulting to $.
func DetectCurrencySymbol(text string) string {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case strings.Contains(lower, "£") || strings.Contains(lower, "gbp"):
		return "£"
	case strings.Contains(lower, "€") || strings.Contains(lower, "eur"):
		return "€"
	case strings.Contains(lower, "₦") || strings.Contains(lower, "ngn") || strings.Contains(lower, "naira"):
		return "₦"
	}
	return "$"
}

// ExtractRenewalDate returns the raw date text following a renewal or
// billing phrase. The text is not parsed into a calendar date.
func ExtractRenewalDate(subject, body string) string {
	text := combine(subject, body)
	for _, re := range renewalPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// ResolveCancellationURL picks a cancellation link for vendor. Known
// vendors win, then the first cancellation-looking URL in the body, then a
// constructed account-settings URL.
func ResolveCancellationURL(vendor, body string) string {
	if url, ok := catalog.LookupCancelURL(vendor); ok {
		return url
	}

	if m := cancelLinkPattern.FindString(normalizeSpace(body)); m != "" {
		return m
	}

	clean := nonAlnum.ReplaceAllString(strings.ToLower(vendor), "")
	return fmt.Sprintf("https://www.%s.com/account/settings", clean)
}

// DetectPriceChange reports whether the email announces a price change.
// Amounts are gathered from the whole text, so unrelated numbers can be
// picked up as prices.
func DetectPriceChange(subject, body string) models.PriceChange {
	text := strings.ToLower(combine(subject, body))
	if !containsAny(text, priceChangePhrases) {
		return models.PriceChange{}
	}

	var prices []decimal.Decimal
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			p, err := decimal.NewFromString(m[1])
			if err != nil {
				continue
			}
			prices = appendDistinct(prices, p)
		}
	}

	pc := models.PriceChange{HasChange: true}
	if len(prices) >= 2 {
		pc.OldPrice = decimal.NewNullDecimal(decimal.Min(prices[0], prices[1:]...))
		pc.NewPrice = decimal.NewNullDecimal(decimal.Max(prices[0], prices[1:]...))
	}
	return pc
}

func appendDistinct(prices []decimal.Decimal, p decimal.Decimal) []decimal.Decimal {
	for _, existing := range prices {
		if existing.Equal(p) {
			return prices
		}
	}
	return append(prices, p)
}

// Categorize classifies an email. It always returns one of the enumerated
// types, falling back to general.
func Categorize(subject, body string) models.EmailType {
	text := strings.ToLower(combine(subject, body))
	for _, rule := range emailTypeRules {
		if containsAny(text, rule.keywords) {
			return rule.typ
		}
	}
	return models.EmailGeneral
}

// ExtractPaymentMethod returns a display label for the payment method
// mentioned in body, or "" when none is found.
func ExtractPaymentMethod(body string) string {
	lower := strings.ToLower(normalizeSpace(body))
	if m := cardPattern.FindStringSubmatch(lower); m != nil {
		return "Card ****" + m[1]
	}
	if strings.Contains(lower, "paypal") {
		return "PayPal"
	}
	if containsAny(lower, bankKeywords) {
		return "Bank Account"
	}
	return ""
}

// ShouldAlert gives the email-level alert hint for an extracted type and
// trial day count.
func ShouldAlert(emailType models.EmailType, trialDays *int) (bool, string) {
	switch emailType {
	case models.EmailTrialEnding:
		if trialDays == nil || *trialDays == 0 {
			return false, ""
		}
		d := *trialDays
		if d <= 3 {
			suffix := "s"
			if d == 1 {
				suffix = ""
			}
			return true, fmt.Sprintf("Trial ends in %d day%s!", d, suffix)
		}
		if d <= 7 {
			return true, fmt.Sprintf("Trial ends soon (%d days)", d)
		}
	case models.EmailPriceChange:
		return true, "Price increase detected"
	case models.EmailRenewalReminder:
		return true, "Renewal coming up"
	}
	return false, ""
}
