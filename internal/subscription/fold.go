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

package subscription

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/models"
)

// defaultDaysRemaining is used when no trial end or renewal date is known.
const defaultDaysRemaining = 30

var subscriptionNamespace = uuid.MustParse("6f1c2a4e-3b8d-5e7f-9a0b-1c2d3e4f5a6b")

// ID derives the stable subscription ID for a user's vendor.
func ID(userID, name string) string {
	return uuid.NewSHA1(subscriptionNamespace, []byte(userID+"\x00"+strings.ToLower(name))).String()
}

// Name is the vendor name a bundle is filed under: the catalog name, else
// the sender address.
func Name(b models.SignalBundle, msg models.EmailMessage) string {
	if name := strings.TrimSpace(b.VendorName); name != "" {
		return name
	}
	return strings.TrimSpace(msg.SenderAddress)
}

// Fold merges the signals of one email into the user's subscription for
// that vendor. existing may be nil. Emails older than the last one folded
// only fill in blank fields.
func Fold(existing *models.Subscription, b models.SignalBundle, msg models.EmailMessage, now time.Time) models.Subscription {
	var sub models.Subscription
	if existing != nil {
		sub = *existing
	} else {
		name := Name(b, msg)
		sub = models.Subscription{
			ID:       ID(msg.UserID, name),
			UserID:   msg.UserID,
			Name:     name,
			Category: b.VendorCategory,
			Status:   models.StatusActive,
		}
	}

	stale := existing != nil && msg.ReceivedAt.Before(existing.LastEmailAt)

	if sub.Category == "" || sub.Category == models.CategoryOther {
		if b.VendorCategory != "" {
			sub.Category = b.VendorCategory
		}
	}
	fillString(&sub.CancelURL, b.CancellationURL, stale)
	fillString(&sub.PaymentMethod, b.PaymentMethodLabel, stale)
	fillString(&sub.RenewalDateText, b.RenewalDateText, stale)

	if stale {
		Refresh(&sub, now)
		return sub
	}

	foldPrice(&sub, b)
	foldSchedule(&sub, b, msg.ReceivedAt)

	switch b.EmailType {
	case models.EmailCancellation:
		sub.Status = models.StatusCancelled
	case models.EmailPaymentConfirmation, models.EmailRenewalReminder, models.EmailNewSubscription,
		models.EmailTrialEnding, models.EmailPriceChange:
		sub.Status = models.StatusActive
	}

	if msg.ReceivedAt.After(sub.LastEmailAt) {
		sub.LastEmailAt = msg.ReceivedAt
	}
	sub.UpdatedAt = now

	Refresh(&sub, now)
	return sub
}

func fillString(dst *string, v string, onlyIfBlank bool) {
	if v == "" {
		return
	}
	if onlyIfBlank && *dst != "" {
		return
	}
	*dst = v
}

// foldPrice applies price history. An explicit price-change email wins;
// otherwise a higher price than the stored one counts as an increase.
func foldPrice(sub *models.Subscription, b models.SignalBundle) {
	pc := b.PriceChange
	if pc.HasChange && pc.OldPrice.Valid && pc.NewPrice.Valid {
		sub.OldPrice = pc.OldPrice
		sub.Price = pc.NewPrice.Decimal
		sub.PriceIncreased = pc.NewPrice.Decimal.GreaterThan(pc.OldPrice.Decimal)
		if b.CurrencySymbol != "" {
			sub.Currency = b.CurrencySymbol
		}
		return
	}

	if !b.Price.Valid {
		return
	}
	price := b.Price.Decimal
	switch {
	case sub.Price.IsPositive() && price.GreaterThan(sub.Price):
		sub.OldPrice = decimal.NewNullDecimal(sub.Price)
		sub.PriceIncreased = true
	case price.LessThan(sub.Price):
		sub.OldPrice = decimal.NullDecimal{}
		sub.PriceIncreased = false
	}
	sub.Price = price
	sub.Currency = b.CurrencySymbol
}

// foldSchedule sets the trial end or next renewal from the email.
func foldSchedule(sub *models.Subscription, b models.SignalBundle, received time.Time) {
	if b.IsTrial && b.TrialDaysRemaining != nil {
		sub.IsTrial = true
		end := startOfDay(received).AddDate(0, 0, *b.TrialDaysRemaining)
		sub.NextBoundaryAt = &end
		return
	}

	if b.EmailType == models.EmailPaymentConfirmation {
		sub.IsTrial = false
	}

	if b.RenewalDateText != "" {
		if d, ok := ParseRenewalDate(b.RenewalDateText, received); ok {
			sub.NextBoundaryAt = &d
			return
		}
	}

	// A receipt without a date starts a new monthly cycle.
	if b.EmailType == models.EmailPaymentConfirmation {
		next := startOfDay(received).AddDate(0, 1, 0)
		sub.NextBoundaryAt = &next
	}
}

// Refresh recomputes the day counters of sub relative to now. A passed
// trial end converts the trial, and a passed renewal rolls forward monthly.
func Refresh(sub *models.Subscription, now time.Time) {
	today := startOfDay(now)

	if sub.NextBoundaryAt != nil {
		boundary := startOfDay(*sub.NextBoundaryAt)
		if boundary.Before(today) {
			sub.IsTrial = false
			for boundary.Before(today) {
				boundary = boundary.AddDate(0, 1, 0)
			}
		}
		sub.NextBoundaryAt = &boundary
		sub.DaysRemaining = daysBetween(today, boundary)
	} else {
		sub.DaysRemaining = defaultDaysRemaining
	}

	if sub.IsTrial {
		sub.TrialDaysRemaining = sub.DaysRemaining
	} else {
		sub.TrialDaysRemaining = 0
	}

	if sub.LastViewedAt != nil {
		sub.LastViewedDaysAgo = daysBetween(startOfDay(*sub.LastViewedAt), today)
	} else {
		sub.LastViewedDaysAgo = 0
	}
}

var renewalLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
}

// ParseRenewalDate turns extracted renewal text into a date. Text without
// a year resolves to the next occurrence on or after ref.
func ParseRenewalDate(text string, ref time.Time) (time.Time, bool) {
	text = strings.Join(strings.Fields(text), " ")

	for _, layout := range renewalLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		d := time.Date(ref.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(startOfDay(ref)) {
			d = d.AddDate(1, 0, 0)
		}
		return d, true
	}

	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
