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

// Package models defines the data structures shared across the scanner:
// inbound email messages, the signals extracted from them, the subscription
// snapshots evaluated for alerts, and the notifications handed to delivery.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmailMessage is one inbound message handed over by a mail source.
// Only Subject, Body and SenderDisplayName feed signal extraction; the
// identifiers are carried for dedup and persistence.
type EmailMessage struct {
	MessageID         string    `json:"message_id,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	SenderDisplayName string    `json:"sender"`
	SenderAddress     string    `json:"sender_address,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// EmailType classifies a billing email. Exactly one value is assigned to
// every message.
type EmailType string

const (
	EmailTrialEnding         EmailType = "trial_ending"
	EmailPaymentConfirmation EmailType = "payment_confirmation"
	EmailRenewalReminder     EmailType = "renewal_reminder"
	EmailNewSubscription     EmailType = "new_subscription"
	EmailPriceChange         EmailType = "price_change"
	EmailCancellation        EmailType = "cancellation"
	EmailGeneral             EmailType = "general"
)

// EmailTypes lists every EmailType in classification order.
var EmailTypes = []EmailType{
	EmailTrialEnding,
	EmailPaymentConfirmation,
	EmailRenewalReminder,
	EmailNewSubscription,
	EmailPriceChange,
	EmailCancellation,
	EmailGeneral,
}

// Valid reports whether t is one of the enumerated email types.
func (t EmailType) Valid() bool {
	for _, v := range EmailTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Category is the service category of a vendor signature.
type Category string

const (
	CategoryVideo     Category = "Video"
	CategoryMusic     Category = "Music"
	CategoryWorkAI    Category = "Work/AI"
	CategoryLifestyle Category = "Lifestyle/Health"
	CategoryStorage   Category = "Storage/Utilities"
	CategoryOther     Category = "Other"
)

// PriceChange is the outcome of price-change detection. OldPrice and
// NewPrice are only valid when at least two distinct amounts were found.
type PriceChange struct {
	HasChange bool                `json:"has_change"`
	OldPrice  decimal.NullDecimal `json:"old_price"`
	NewPrice  decimal.NullDecimal `json:"new_price"`
}

// SignalBundle holds every fact extracted from a single email. Absent
// signals are zero values: nil pointers, empty strings, invalid
// NullDecimals. EmailType is always set.
type SignalBundle struct {
	IsTrial            bool                `json:"is_trial"`
	TrialDaysRemaining *int                `json:"trial_days_remaining,omitempty"`
	Price              decimal.NullDecimal `json:"price"`
	CurrencySymbol     string              `json:"currency_symbol,omitempty"`
	RenewalDateText    string              `json:"renewal_date_text,omitempty"`
	CancellationURL    string              `json:"cancellation_url,omitempty"`
	PaymentMethodLabel string              `json:"payment_method,omitempty"`
	EmailType          EmailType           `json:"email_type"`
	PriceChange        PriceChange         `json:"price_change"`

	// Vendor resolution of the sender through the signature catalog.
	VendorName     string   `json:"vendor_name,omitempty"`
	VendorCategory Category `json:"vendor_category,omitempty"`
}

// HasSubscriptionSignal reports whether the bundle carries anything worth
// folding into a subscription record.
func (b SignalBundle) HasSubscriptionSignal() bool {
	return b.IsTrial || b.Price.Valid || b.PriceChange.HasChange || b.EmailType != EmailGeneral
}
