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

package alerts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/models"
)

const (
	trialWarningDays   = 3
	renewalWarningDays = 3
	lowUsageThreshold  = 0.25
	forgottenAfterDays = 60
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	hundred       = decimal.NewFromInt(100)
)

// rule inspects one subscription and returns a notification, or nil.
type rule func(sub models.Subscription, now time.Time) *models.Notification

func money(currency string, amount decimal.Decimal) string {
	return currency + amount.StringFixed(2)
}

// newNotification starts a notification for sub. Metadata values are plain
// JSON scalars; amounts go in as float64.
func newNotification(sub models.Subscription, now time.Time, typ models.NotificationType, prio models.Priority) *models.Notification {
	return &models.Notification{
		Type:             typ,
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Priority:         prio,
		Metadata:         map[string]any{},
		CreatedAt:        now,
	}
}

func checkTrial(sub models.Subscription, now time.Time) *models.Notification {
	if !sub.IsTrial {
		return nil
	}
	name := sub.Name

	switch sub.DaysRemaining {
	case trialWarningDays:
		n := newNotification(sub, now, models.NotifyTrialEndingSoon, models.PriorityHigh)
		n.Title = fmt.Sprintf("⚠️ %s Trial Ending Soon", name)
		n.Message = fmt.Sprintf("Your %s free trial ends in 3 days. Cancel now to avoid charges.", name)
		n.ActionURL = sub.CancelURL
		n.ActionLabel = "Cancel Now"
		n.Metadata["days_remaining"] = sub.DaysRemaining
		return n
	case 1:
		n := newNotification(sub, now, models.NotifyTrialEndingToday, models.PriorityUrgent)
		n.Title = fmt.Sprintf("🚨 %s Trial Ends Tomorrow!", name)
		n.Message = fmt.Sprintf("Your %s trial ends tomorrow. You'll be charged if you don't cancel.", name)
		n.ActionURL = sub.CancelURL
		n.ActionLabel = "Cancel Immediately"
		n.Metadata["days_remaining"] = 1
		return n
	case 0:
		n := newNotification(sub, now, models.NotifyTrialEndingToday, models.PriorityUrgent)
		n.Title = fmt.Sprintf("🔥 %s Trial Ends TODAY!", name)
		n.Message = fmt.Sprintf("URGENT: Your %s trial ends today. Cancel NOW to avoid charges!", name)
		n.ActionURL = sub.CancelURL
		n.ActionLabel = "CANCEL NOW"
		n.Metadata["days_remaining"] = 0
		return n
	}
	return nil
}

func checkRenewal(sub models.Subscription, now time.Time) *models.Notification {
	if sub.IsTrial || sub.DaysRemaining != renewalWarningDays {
		return nil
	}
	n := newNotification(sub, now, models.NotifyRenewalReminder, models.PriorityMedium)
	n.Title = fmt.Sprintf("💳 %s Renews in 3 Days", sub.Name)
	n.Message = fmt.Sprintf("You'll be charged %s in 3 days for %s.", money(sub.Currency, sub.Price), sub.Name)
	n.Metadata["days_remaining"] = sub.DaysRemaining
	n.Metadata["amount"] = sub.Price.InexactFloat64()
	return n
}

func checkLowUsage(sub models.Subscription, now time.Time) *models.Notification {
	if sub.UsageLevel == nil || *sub.UsageLevel >= lowUsageThreshold {
		return nil
	}
	savings := sub.Price.Mul(monthsPerYear)

	n := newNotification(sub, now, models.NotifyLowUsageWarning, models.PriorityLow)
	n.Title = fmt.Sprintf("💡 Barely Using %s?", sub.Name)
	n.Message = fmt.Sprintf("You've barely used %s this month. Cancel and save %s/year.", sub.Name, money(sub.Currency, savings))
	n.ActionLabel = "Review Subscription"
	n.Metadata["usage_level"] = *sub.UsageLevel
	n.Metadata["potential_savings"] = savings.InexactFloat64()
	return n
}

func checkPriceIncrease(sub models.Subscription, now time.Time) *models.Notification {
	if !sub.PriceIncreased {
		return nil
	}

	oldPrice := decimal.Zero
	if sub.OldPrice.Valid {
		oldPrice = sub.OldPrice.Decimal
	}
	newPrice := sub.Price
	increase := newPrice.Sub(oldPrice)

	// A missing or non-positive old price yields a zero percentage.
	pct := decimal.Zero
	if oldPrice.IsPositive() {
		pct = increase.Div(oldPrice).Mul(hundred)
	}

	n := newNotification(sub, now, models.NotifyPriceIncrease, models.PriorityHigh)
	n.Title = fmt.Sprintf("📈 %s Price Increased", sub.Name)
	n.Message = fmt.Sprintf("%s increased from %s to %s (+%s%%).",
		sub.Name, money(sub.Currency, oldPrice), money(sub.Currency, newPrice), pct.StringFixed(0))
	n.Metadata["old_price"] = oldPrice.InexactFloat64()
	n.Metadata["new_price"] = newPrice.InexactFloat64()
	n.Metadata["increase"] = increase.InexactFloat64()
	n.Metadata["increase_pct"] = pct.InexactFloat64()
	return n
}

func checkForgotten(sub models.Subscription, now time.Time) *models.Notification {
	if sub.LastViewedDaysAgo <= forgottenAfterDays {
		return nil
	}
	n := newNotification(sub, now, models.NotifyForgottenSubscription, models.PriorityMedium)
	n.Title = fmt.Sprintf("🤔 Still Need %s?", sub.Name)
	n.Message = fmt.Sprintf("You haven't checked %s in %d days. Still using it?", sub.Name, sub.LastViewedDaysAgo)
	n.ActionLabel = "Review"
	n.Metadata["last_viewed_days"] = sub.LastViewedDaysAgo
	n.Metadata["monthly_cost"] = sub.Price.InexactFloat64()
	return n
}
