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
	"time"

	"github.com/shopspring/decimal"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Subscription is the snapshot the alert engine evaluates. It is built and
// mutated by callers (the store, the scanner); the engine only reads it.
type Subscription struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id,omitempty"`
	Name     string          `json:"name"`
	Category Category        `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`

	IsTrial            bool `json:"is_trial"`
	TrialDaysRemaining int  `json:"trial_days_remaining"`
	// DaysRemaining counts days until the next renewal or trial boundary.
	DaysRemaining int `json:"days_remaining"`
	// NextBoundaryAt is the trial end or next renewal, when known.
	NextBoundaryAt *time.Time `json:"next_boundary_at,omitempty"`

	// UsageLevel is in [0,1]. Nil means no usage data is available.
	UsageLevel *float64 `json:"usage_level,omitempty"`

	PriceIncreased    bool                `json:"price_increased"`
	OldPrice          decimal.NullDecimal `json:"old_price"`
	LastViewedDaysAgo int                 `json:"last_viewed_days_ago"`
	LastViewedAt      *time.Time          `json:"last_viewed_at,omitempty"`

	CancelURL       string `json:"cancel_url,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	RenewalDateText string `json:"renewal_date_text,omitempty"`
	Status          string `json:"status,omitempty"`

	LastEmailAt time.Time `json:"last_email_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
