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

package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/alerts"
	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/extract"
	"github.com/killswitch/scanner/internal/graph"
	"github.com/killswitch/scanner/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Mock dedup filter ---

type mockDedup struct {
	mu     sync.Mutex
	seen   map[string]bool
	forgot []string
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool)}
}

func (m *mockDedup) IsNew(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDedup) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	m.forgot = append(m.forgot, key)
	return nil
}

// --- Mock store ---

type mockStore struct {
	mu      sync.Mutex
	subs    map[string]models.Subscription
	listErr error
}

func newMockStore(subs ...models.Subscription) *mockStore {
	m := &mockStore{subs: make(map[string]models.Subscription)}
	for _, s := range subs {
		m.subs[s.UserID+"|"+s.Name] = s
	}
	return m
}

func (m *mockStore) Get(_ context.Context, userID, name string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID+"|"+name]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockStore) Upsert(_ context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID+"|"+sub.Name] = sub
	return nil
}

func (m *mockStore) ListActive(_ context.Context) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Subscription
	for _, s := range m.subs {
		if s.Status == models.StatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) get(userID, name string) (models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID+"|"+name]
	return s, ok
}

// --- Mock sink ---

type mockSink struct {
	mu        sync.Mutex
	delivered [][]models.Notification
}

func (m *mockSink) Deliver(_ context.Context, ns []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, ns)
	return nil
}

func (m *mockSink) passes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

// --- Graph test server ---

type testMessage struct {
	id, sender, subject, body string
	received                  time.Time
}

func newGraphServer(t *testing.T, user string, msgs []testMessage, failing map[string]bool) *httptest.Server {
	t.Helper()
	prefix := "/users/" + user + "/messages"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == prefix {
			value := make([]map[string]string, 0, len(msgs))
			for _, m := range msgs {
				value = append(value, map[string]string{"id": m.id})
			}
			data, _ := json.Marshal(map[string]interface{}{"value": value})
			w.Write(data)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		if failing[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		for _, m := range msgs {
			if m.id != id {
				continue
			}
			data, _ := json.Marshal(map[string]interface{}{
				"id":               m.id,
				"subject":          m.subject,
				"receivedDateTime": m.received.Format(time.RFC3339),
				"from": map[string]interface{}{
					"emailAddress": map[string]string{"name": m.sender, "address": "noreply@vendor.test"},
				},
				"body": map[string]string{"contentType": "text", "content": m.body},
			})
			w.Write(data)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

var sampleMessages = []testMessage{
	{
		id: "msg-netflix", sender: "Netflix",
		subject:  "Your Netflix receipt",
		body:     "We charged $15.49 to your Visa ending in 1881.",
		received: fixedNow.Add(-2 * time.Hour),
	},
	{
		id: "msg-news", sender: "Weekly Digest",
		subject:  "Hello from the digest",
		body:     "Here are the stories we picked for you.",
		received: fixedNow.Add(-3 * time.Hour),
	},
	{
		id: "msg-disney", sender: "Disney+",
		subject:  "Your Disney+ free trial ends in 3 days",
		body:     "Manage your plan in settings.",
		received: fixedNow.Add(-1 * time.Hour),
	},
}

func newTestRunner(server *httptest.Server, store *mockStore, dd *mockDedup, sink alerts.Sink) *Runner {
	clock := func() time.Time { return fixedNow }
	return NewRunner(RunnerConfig{
		Mail:      graph.NewClient(server.URL, time.Millisecond),
		Extractor: extract.New(catalog.Default()),
		Store:     store,
		Dedup:     dd,
		Sink:      sink,
		Now:       clock,
	})
}

func TestScanMailbox_DetectsSubscriptions(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, nil)
	defer server.Close()

	store := newMockStore()
	r := newTestRunner(server, store, newMockDedup(), nil)

	ur, err := r.ScanMailbox(context.Background(), server.Client(), "acme", user)
	if err != nil {
		t.Fatalf("ScanMailbox failed: %v", err)
	}
	if ur.Fetched != 3 || ur.Detected != 2 || ur.Skipped != 0 || ur.Errors != 0 {
		t.Errorf("result = %+v", ur)
	}

	netflix, ok := store.get(user, "Netflix")
	if !ok {
		t.Fatal("expected Netflix subscription")
	}
	if !netflix.Price.Equal(decimal.RequireFromString("15.49")) || netflix.PaymentMethod != "Card ****1881" {
		t.Errorf("netflix = %s %q", netflix.Price, netflix.PaymentMethod)
	}

	disney, ok := store.get(user, "Disney+")
	if !ok {
		t.Fatal("expected Disney+ subscription")
	}
	if !disney.IsTrial || disney.DaysRemaining != 3 {
		t.Errorf("disney trial = %v days=%d", disney.IsTrial, disney.DaysRemaining)
	}
	if disney.CancelURL != "https://www.disneyplus.com/account" {
		t.Errorf("disney cancel url = %q", disney.CancelURL)
	}

	if _, ok := store.get(user, "Weekly Digest"); ok {
		t.Error("newsletter should not become a subscription")
	}
}

func TestScanMailbox_SkipsSeenMessages(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, nil)
	defer server.Close()

	r := newTestRunner(server, newMockStore(), newMockDedup(), nil)
	ctx := context.Background()

	if _, err := r.ScanMailbox(ctx, server.Client(), "acme", user); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	ur, err := r.ScanMailbox(ctx, server.Client(), "acme", user)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if ur.Fetched != 0 || ur.Skipped != 3 {
		t.Errorf("second scan = %+v, want all skipped", ur)
	}
}

func TestScanMailbox_FetchErrorIsRetried(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, map[string]bool{"msg-netflix": true})
	defer server.Close()

	dd := newMockDedup()
	r := newTestRunner(server, newMockStore(), dd, nil)

	ur, err := r.ScanMailbox(context.Background(), server.Client(), "acme", user)
	if err != nil {
		t.Fatalf("ScanMailbox failed: %v", err)
	}
	if ur.Errors != 1 || ur.Fetched != 2 {
		t.Errorf("result = %+v", ur)
	}
	if len(dd.forgot) != 1 || !strings.HasSuffix(dd.forgot[0], "msg-netflix") {
		t.Errorf("expected failed message to be forgotten, got %v", dd.forgot)
	}
}

func TestScan_ContinuesAfterUserFailure(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, nil)
	defer server.Close()

	store := newMockStore()
	r := newTestRunner(server, store, newMockDedup(), nil)

	result := r.Scan(context.Background(), Mailbox{
		TenantAlias: "acme",
		Client:      server.Client(),
		Users:       []string{"ghost@acme.test", user},
	})

	if len(result.UserResults) != 2 {
		t.Fatalf("expected 2 user results, got %d", len(result.UserResults))
	}
	// The unknown user's list call 404s.
	if result.UserResults[0].Errors != 1 {
		t.Errorf("ghost result = %+v", result.UserResults[0])
	}
	if result.TotalDetected != 2 || result.TotalFetched != 3 {
		t.Errorf("totals = fetched %d detected %d", result.TotalFetched, result.TotalDetected)
	}
}

func TestRunAlerts_DeliversOrderedNotifications(t *testing.T) {
	store := newMockStore(
		models.Subscription{
			ID: "sub-disney", UserID: "u", Name: "Disney+ Trial", IsTrial: true, DaysRemaining: 1,
			Status: models.StatusActive, CancelURL: "https://www.disneyplus.com/account",
		},
		models.Subscription{
			ID: "sub-gym", UserID: "u", Name: "Gym", DaysRemaining: 30, Status: models.StatusActive,
			UsageLevel: func() *float64 { v := 0.05; return &v }(), Price: decimal.NewFromInt(20), Currency: "$",
		},
		models.Subscription{
			ID: "sub-old", UserID: "u", Name: "Old", IsTrial: true, DaysRemaining: 0, Status: models.StatusCancelled,
		},
	)
	sink := &mockSink{}
	r := NewRunner(RunnerConfig{Store: store, Sink: sink, Now: func() time.Time { return fixedNow }})

	summary, err := r.RunAlerts(context.Background())
	if err != nil {
		t.Fatalf("RunAlerts failed: %v", err)
	}
	if summary.Total != 2 || summary.Urgent != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if sink.passes() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.passes())
	}
	ns := sink.delivered[0]
	if ns[0].SubscriptionID != "sub-disney" || ns[0].Priority != models.PriorityUrgent {
		t.Errorf("first notification = %+v", ns[0])
	}
	if ns[1].Type != models.NotifyLowUsageWarning {
		t.Errorf("second notification = %+v", ns[1])
	}
}

func TestRunAlerts_NothingToDeliver(t *testing.T) {
	sink := &mockSink{}
	r := NewRunner(RunnerConfig{Store: newMockStore(), Sink: sink})

	if _, err := r.RunAlerts(context.Background()); err != nil {
		t.Fatalf("RunAlerts failed: %v", err)
	}
	if sink.passes() != 0 {
		t.Error("sink should not be called with no notifications")
	}
}

func TestRunAlerts_StoreError(t *testing.T) {
	store := newMockStore()
	store.listErr = errors.New("connection refused")
	r := NewRunner(RunnerConfig{Store: store})

	if _, err := r.RunAlerts(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRunner_StartStop(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, nil)
	defer server.Close()

	store := newMockStore()
	sink := &mockSink{}
	r := newTestRunner(server, store, newMockDedup(), sink)

	r.Start(context.Background(), []Mailbox{{TenantAlias: "acme", Client: server.Client(), Users: []string{user}}},
		10*time.Millisecond, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sink.passes() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	if _, ok := store.get(user, "Netflix"); !ok {
		t.Error("expected the periodic scan to store Netflix")
	}
	if sink.passes() == 0 {
		t.Error("expected at least one alert delivery")
	}
}

func TestRunner_StartNonPositiveInterval(t *testing.T) {
	const user = "alice@acme.test"
	server := newGraphServer(t, user, sampleMessages, nil)
	defer server.Close()

	store := newMockStore()
	r := newTestRunner(server, store, newMockDedup(), &mockSink{})

	r.Start(context.Background(), []Mailbox{{TenantAlias: "acme", Client: server.Client(), Users: []string{user}}}, 0, -time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.get(user, "Netflix"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	if _, ok := store.get(user, "Netflix"); !ok {
		t.Error("expected a single scan to store Netflix")
	}
}

func TestRunner_StopWithoutStart(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	r.Stop()
}
