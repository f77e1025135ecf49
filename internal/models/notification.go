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

package models

import (
	"fmt"
	"time"
)

// NotificationType is the closed set of alert kinds.
type NotificationType string

const (
	NotifyTrialEndingSoon       NotificationType = "trial_ending_soon"
	NotifyTrialEndingToday      NotificationType = "trial_ending_today"
	NotifyRenewalReminder       NotificationType = "renewal_reminder"
	NotifyLowUsageWarning       NotificationType = "low_usage_warning"
	NotifyPriceIncrease         NotificationType = "price_increase"
	NotifyForgottenSubscription NotificationType = "forgotten_subscription"
	NotifyDuplicateSubscription NotificationType = "duplicate_subscription"
	NotifyPaymentFailed         NotificationType = "payment_failed"
)

// Priority orders notifications for delivery. Use Rank for comparisons.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort position of p: urgent < high < medium < low.
// Unknown priorities sort after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Notification is a single alert produced by one evaluation pass.
type Notification struct {
	Type             NotificationType `json:"type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	SubscriptionID   string           `json:"subscription_id"`
	SubscriptionName string           `json:"subscription_name"`
	Priority         Priority         `json:"priority"`
	ActionURL        string           `json:"action_url,omitempty"`
	ActionLabel      string           `json:"action_label,omitempty"`
	Metadata         map[string]any   `json:"metadata"`
	CreatedAt        time.Time        `json:"created_at"`
	IsRead           bool             `json:"is_read"`
}

// ID derives the notification identity from its subscription and creation
// time.
func (n Notification) ID() string {
	return fmt.Sprintf("notif_%s_%d", n.SubscriptionID, n.CreatedAt.Unix())
}
