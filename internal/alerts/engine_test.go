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
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

func usage(v float64) *float64 { return &v }

func TestGenerate_TrialEndsTomorrow(t *testing.T) {
	subs := []models.Subscription{{
		ID:            "sub-1",
		Name:          "Disney+ Trial",
		IsTrial:       true,
		DaysRemaining: 1,
		Price:         decimal.RequireFromString("7.99"),
		Currency:      "$",
		CancelURL:     "https://www.disneyplus.com/account",
	}}

	got := newTestEngine().Generate(subs)
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d: %+v", len(got), got)
	}
	n := got[0]
	if n.Type != models.NotifyTrialEndingToday {
		t.Errorf("type = %q, want trial_ending_today", n.Type)
	}
	if n.Priority != models.PriorityUrgent {
		t.Errorf("priority = %q, want urgent", n.Priority)
	}
	if n.ActionLabel != "Cancel Immediately" {
		t.Errorf("action label = %q", n.ActionLabel)
	}
	if n.ActionURL != "https://www.disneyplus.com/account" {
		t.Errorf("action url = %q", n.ActionURL)
	}
	if !strings.Contains(n.Title, "Disney+ Trial") {
		t.Errorf("title %q should name the subscription", n.Title)
	}
	if n.Metadata["days_remaining"] != 1 {
		t.Errorf("days_remaining = %v, want 1", n.Metadata["days_remaining"])
	}
	if !n.CreatedAt.Equal(fixedNow) {
		t.Errorf("created at = %v, want %v", n.CreatedAt, fixedNow)
	}
	if n.IsRead {
		t.Error("new notifications must be unread")
	}
	if n.ID() != "notif_sub-1_1740819600" {
		t.Errorf("id = %q", n.ID())
	}
}

func TestGenerate_TrialThresholds(t *testing.T) {
	tests := []struct {
		days     int
		wantType models.NotificationType
		wantPrio models.Priority
		label    string
	}{
		{3, models.NotifyTrialEndingSoon, models.PriorityHigh, "Cancel Now"},
		{1, models.NotifyTrialEndingToday, models.PriorityUrgent, "Cancel Immediately"},
		{0, models.NotifyTrialEndingToday, models.PriorityUrgent, "CANCEL NOW"},
	}

	for _, tt := range tests {
		got := newTestEngine().Generate([]models.Subscription{{
			ID: "t", Name: "Trial", IsTrial: true, DaysRemaining: tt.days, Currency: "$",
		}})
		if len(got) != 1 {
			t.Fatalf("days=%d: expected 1 notification, got %d", tt.days, len(got))
		}
		if got[0].Type != tt.wantType || got[0].Priority != tt.wantPrio || got[0].ActionLabel != tt.label {
			t.Errorf("days=%d: got %q/%q/%q", tt.days, got[0].Type, got[0].Priority, got[0].ActionLabel)
		}
	}
}

func TestGenerate_TrialDaysWithoutRule(t *testing.T) {
	for _, days := range []int{2, 4, 7, -1} {
		got := newTestEngine().Generate([]models.Subscription{{
			ID: "t", Name: "Trial", IsTrial: true, DaysRemaining: days,
		}})
		if len(got) != 0 {
			t.Errorf("days=%d: expected no notifications, got %+v", days, got)
		}
	}
}

func TestGenerate_RenewalReminder(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "r", Name: "Spotify", DaysRemaining: 3,
		Price: decimal.RequireFromString("10.99"), Currency: "£",
	}})
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.Type != models.NotifyRenewalReminder || n.Priority != models.PriorityMedium {
		t.Errorf("got %q/%q", n.Type, n.Priority)
	}
	if !strings.Contains(n.Message, "£10.99") {
		t.Errorf("message %q should contain £10.99", n.Message)
	}
	if n.Metadata["amount"] != 10.99 {
		t.Errorf("amount = %v", n.Metadata["amount"])
	}
}

func TestGenerate_RenewalExactDayOnly(t *testing.T) {
	for _, days := range []int{0, 1, 2, 4, 7, 30} {
		got := newTestEngine().Generate([]models.Subscription{{
			ID: "r", Name: "Spotify", DaysRemaining: days,
			Price: decimal.RequireFromString("10.99"), Currency: "$",
		}})
		for _, n := range got {
			if n.Type == models.NotifyRenewalReminder {
				t.Errorf("days=%d: renewal reminder fired", days)
			}
		}
	}
}

func TestGenerate_ActionURLOnlyOnTrialAlerts(t *testing.T) {
	const cancel = "https://example.com/cancel"
	got := newTestEngine().Generate([]models.Subscription{
		{ID: "t", Name: "Trial", IsTrial: true, DaysRemaining: 3, CancelURL: cancel},
		{ID: "r", Name: "Renewal", DaysRemaining: 3, CancelURL: cancel},
		{ID: "l", Name: "Low", UsageLevel: usage(0.1), DaysRemaining: 30, CancelURL: cancel},
		{ID: "p", Name: "Price", PriceIncreased: true, DaysRemaining: 30, CancelURL: cancel},
		{ID: "f", Name: "Forgotten", LastViewedDaysAgo: 90, DaysRemaining: 30, CancelURL: cancel},
	})
	if len(got) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(got))
	}
	for _, n := range got {
		isTrial := n.Type == models.NotifyTrialEndingSoon || n.Type == models.NotifyTrialEndingToday
		if isTrial && n.ActionURL != cancel {
			t.Errorf("%s: action url = %q, want %q", n.Type, n.ActionURL, cancel)
		}
		if !isTrial && n.ActionURL != "" {
			t.Errorf("%s: unexpected action url %q", n.Type, n.ActionURL)
		}
	}
}

func TestGenerate_MetadataEncodesAsNumbers(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{
		{ID: "l", Name: "Gym", UsageLevel: usage(0.05), Price: decimal.NewFromInt(20), Currency: "$", DaysRemaining: 30},
		{ID: "p", Name: "Netflix", PriceIncreased: true, OldPrice: decimal.NewNullDecimal(decimal.NewFromInt(10)),
			Price: decimal.NewFromInt(15), Currency: "$", DaysRemaining: 30},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []struct {
		Type     models.NotificationType `json:"type"`
		Metadata map[string]any          `json:"metadata"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[models.NotificationType]map[string]float64{
		models.NotifyLowUsageWarning: {"potential_savings": 240, "usage_level": 0.05},
		models.NotifyPriceIncrease:   {"old_price": 10, "new_price": 15, "increase": 5, "increase_pct": 50},
	}
	for _, n := range decoded {
		for key, v := range want[n.Type] {
			num, ok := n.Metadata[key].(float64)
			if !ok {
				t.Errorf("%s: %s = %#v, want a JSON number", n.Type, key, n.Metadata[key])
				continue
			}
			if num != v {
				t.Errorf("%s: %s = %v, want %v", n.Type, key, num, v)
			}
		}
	}
}

func TestGenerate_TrialAtThreeDaysIsNotRenewal(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "t", Name: "Trial", IsTrial: true, DaysRemaining: 3,
	}})
	for _, n := range got {
		if n.Type == models.NotifyRenewalReminder {
			t.Error("trials must not get renewal reminders")
		}
	}
}

func TestGenerate_LowUsage(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "l", Name: "Gym", UsageLevel: usage(0.05),
		Price: decimal.NewFromInt(20), Currency: "$", DaysRemaining: 30,
	}})
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.Type != models.NotifyLowUsageWarning || n.Priority != models.PriorityLow {
		t.Errorf("got %q/%q", n.Type, n.Priority)
	}
	if n.ActionLabel != "Review Subscription" {
		t.Errorf("action label = %q", n.ActionLabel)
	}
	if n.Metadata["potential_savings"] != 240.0 {
		t.Errorf("potential_savings = %v, want 240", n.Metadata["potential_savings"])
	}
	if !strings.Contains(n.Message, "$240.00/year") {
		t.Errorf("message = %q", n.Message)
	}
}

func TestGenerate_LowUsageThreshold(t *testing.T) {
	tests := []struct {
		level *float64
		want  bool
	}{
		{nil, false},
		{usage(0), true},
		{usage(0.24), true},
		{usage(0.25), false},
		{usage(0.9), false},
	}
	for _, tt := range tests {
		got := newTestEngine().Generate([]models.Subscription{{ID: "u", Name: "U", UsageLevel: tt.level, DaysRemaining: 30}})
		if (len(got) == 1) != tt.want {
			t.Errorf("usage %v: got %d notifications, want fire=%v", tt.level, len(got), tt.want)
		}
	}
}

func TestGenerate_PriceIncrease(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "p", Name: "Netflix", PriceIncreased: true,
		OldPrice: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		Price:    decimal.NewFromInt(15), Currency: "$", DaysRemaining: 20,
	}})
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.Type != models.NotifyPriceIncrease || n.Priority != models.PriorityHigh {
		t.Errorf("got %q/%q", n.Type, n.Priority)
	}
	if !strings.Contains(n.Message, "$10.00 to $15.00 (+50%)") {
		t.Errorf("message = %q", n.Message)
	}
	if n.Metadata["increase"] != 5.0 {
		t.Errorf("increase = %v", n.Metadata["increase"])
	}
	if n.Metadata["increase_pct"] != 50.0 {
		t.Errorf("increase_pct = %v", n.Metadata["increase_pct"])
	}
	if n.Metadata["old_price"] != 10.0 || n.Metadata["new_price"] != 15.0 {
		t.Errorf("old/new = %v/%v", n.Metadata["old_price"], n.Metadata["new_price"])
	}
}

func TestGenerate_PriceIncreaseWithoutOldPrice(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "p", Name: "Hulu", PriceIncreased: true,
		Price: decimal.NewFromInt(12), Currency: "$", DaysRemaining: 20,
	}})
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].Metadata["increase_pct"] != 0.0 {
		t.Errorf("increase_pct = %v, want 0", got[0].Metadata["increase_pct"])
	}
	if got[0].Metadata["old_price"] != 0.0 {
		t.Errorf("old_price = %v, want 0", got[0].Metadata["old_price"])
	}
}

func TestGenerate_Forgotten(t *testing.T) {
	for _, tt := range []struct {
		days int
		want bool
	}{{60, false}, {61, true}, {200, true}} {
		got := newTestEngine().Generate([]models.Subscription{{
			ID: "f", Name: "Audible", LastViewedDaysAgo: tt.days, DaysRemaining: 20,
			Price: decimal.RequireFromString("14.95"), Currency: "$",
		}})
		if (len(got) == 1) != tt.want {
			t.Fatalf("days=%d: got %d notifications, want fire=%v", tt.days, len(got), tt.want)
		}
		if tt.want {
			if got[0].Type != models.NotifyForgottenSubscription || got[0].ActionLabel != "Review" {
				t.Errorf("days=%d: got %q/%q", tt.days, got[0].Type, got[0].ActionLabel)
			}
			if got[0].Metadata["last_viewed_days"] != tt.days {
				t.Errorf("last_viewed_days = %v", got[0].Metadata["last_viewed_days"])
			}
		}
	}
}

func TestGenerate_OrderedByPriority(t *testing.T) {
	subs := []models.Subscription{
		{ID: "low", Name: "Low", UsageLevel: usage(0.1), DaysRemaining: 30},
		{ID: "medium", Name: "Medium", DaysRemaining: 3},
		{ID: "high", Name: "High", PriceIncreased: true, DaysRemaining: 30},
		{ID: "urgent", Name: "Urgent", IsTrial: true, DaysRemaining: 0},
	}

	got := newTestEngine().Generate(subs)
	want := []string{"urgent", "high", "medium", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].SubscriptionID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].SubscriptionID, id)
		}
	}
}

func TestGenerate_MultipleRulesPerSubscription(t *testing.T) {
	got := newTestEngine().Generate([]models.Subscription{{
		ID: "m", Name: "Everything", DaysRemaining: 3, UsageLevel: usage(0.1),
		PriceIncreased: true, LastViewedDaysAgo: 90, Currency: "$",
	}})

	var types []models.NotificationType
	for _, n := range got {
		types = append(types, n.Type)
	}
	want := []models.NotificationType{
		models.NotifyPriceIncrease,
		models.NotifyRenewalReminder,
		models.NotifyForgottenSubscription,
		models.NotifyLowUsageWarning,
	}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestGenerate_Empty(t *testing.T) {
	if got := newTestEngine().Generate(nil); len(got) != 0 {
		t.Errorf("expected no notifications, got %d", len(got))
	}
}

func TestSortByPriority_UnknownLast(t *testing.T) {
	ns := []models.Notification{
		{Title: "a", Priority: "whatever"},
		{Title: "b", Priority: models.PriorityLow},
		{Title: "c", Priority: models.PriorityUrgent},
	}
	SortByPriority(ns)
	if ns[0].Title != "c" || ns[1].Title != "b" || ns[2].Title != "a" {
		t.Errorf("unexpected order: %s %s %s", ns[0].Title, ns[1].Title, ns[2].Title)
	}
}

func TestSummarize(t *testing.T) {
	ns := []models.Notification{
		{Type: models.NotifyTrialEndingToday, Priority: models.PriorityUrgent},
		{Type: models.NotifyTrialEndingToday, Priority: models.PriorityUrgent},
		{Type: models.NotifyPriceIncrease, Priority: models.PriorityHigh},
		{Type: models.NotifyLowUsageWarning, Priority: models.PriorityLow},
	}
	s := Summarize(ns)
	if s.Total != 4 || s.Urgent != 2 || s.High != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.ByType[models.NotifyTrialEndingToday] != 2 || s.ByType[models.NotifyLowUsageWarning] != 1 {
		t.Errorf("by type = %v", s.ByType)
	}
}
