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

// Package scanner reads billing emails from mailboxes, folds the extracted
// signals into stored subscriptions, and periodically runs the alert
// engine over them.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/killswitch/scanner/internal/alerts"
	"github.com/killswitch/scanner/internal/currency"
	"github.com/killswitch/scanner/internal/dedup"
	"github.com/killswitch/scanner/internal/extract"
	"github.com/killswitch/scanner/internal/metrics"
	"github.com/killswitch/scanner/internal/models"
	"github.com/killswitch/scanner/internal/subscription"
)

// MailSource lists and fetches messages for a mailbox.
type MailSource interface {
	ListMessages(ctx context.Context, httpClient *http.Client, userID string, since time.Time) ([]string, error)
	FetchMessage(ctx context.Context, httpClient *http.Client, userID, messageID string) (*models.EmailMessage, error)
}

// Deduper remembers which messages were already scanned.
type Deduper interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Store persists subscriptions.
type Store interface {
	Get(ctx context.Context, userID, name string) (*models.Subscription, error)
	Upsert(ctx context.Context, sub models.Subscription) error
	ListActive(ctx context.Context) ([]models.Subscription, error)
}

// Mailbox is a set of users reachable with one tenant's HTTP client.
type Mailbox struct {
	TenantAlias string
	Client      *http.Client
	Users       []string
}

// ScanResult summarises a completed scan of one tenant.
type ScanResult struct {
	TenantAlias   string        `json:"tenant"`
	UserResults   []UserResult  `json:"users"`
	TotalFetched  int           `json:"total_fetched"`
	TotalDetected int           `json:"total_detected"`
	TotalSkipped  int           `json:"total_skipped"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// UserResult tracks per-user scan progress.
type UserResult struct {
	UserID   string `json:"user_id"`
	Fetched  int    `json:"fetched"`
	Skipped  int    `json:"skipped"`
	Detected int    `json:"detected"`
	Errors   int    `json:"errors"`
}

// Runner scans mailboxes and runs alert passes.
type Runner struct {
	mail      MailSource
	extractor *extract.Extractor
	store     Store
	dedup     Deduper
	engine    *alerts.Engine
	sink      alerts.Sink
	rates     *currency.Normalizer
	lookback  time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RunnerConfig holds dependencies for the runner.
type RunnerConfig struct {
	Mail      MailSource
	Extractor *extract.Extractor
	Store     Store
	Dedup     Deduper
	Engine    *alerts.Engine
	Sink      alerts.Sink
	Rates     *currency.Normalizer
	Lookback  time.Duration
	Now       func() time.Time
}

// NewRunner creates a runner. Dedup and Sink may be nil.
func NewRunner(cfg RunnerConfig) *Runner {
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 72 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	engine := cfg.Engine
	if engine == nil {
		engine = alerts.NewEngine(alerts.WithClock(now))
	}
	return &Runner{
		mail:      cfg.Mail,
		extractor: cfg.Extractor,
		store:     cfg.Store,
		dedup:     cfg.Dedup,
		engine:    engine,
		sink:      cfg.Sink,
		rates:     cfg.Rates,
		lookback:  lookback,
		now:       now,
	}
}

// Scan scans every user of a mailbox. A failing user is logged and
// counted; the rest are still scanned.
func (r *Runner) Scan(ctx context.Context, mb Mailbox) *ScanResult {
	start := time.Now()

	slog.Info("starting mailbox scan",
		"tenant", mb.TenantAlias,
		"users", len(mb.Users),
		"lookback", r.lookback,
	)

	result := &ScanResult{TenantAlias: mb.TenantAlias}

	for _, userID := range mb.Users {
		ur, err := r.ScanMailbox(ctx, mb.Client, mb.TenantAlias, userID)
		if err != nil {
			slog.Error("scan failed for user",
				"tenant", mb.TenantAlias,
				"user", userID,
				"error", err,
			)
			// Continue with other users
			ur.Errors++
		}

		result.UserResults = append(result.UserResults, ur)
		result.TotalFetched += ur.Fetched
		result.TotalDetected += ur.Detected
		result.TotalSkipped += ur.Skipped
	}

	result.Elapsed = time.Since(start)

	slog.Info("mailbox scan complete",
		"tenant", mb.TenantAlias,
		"total_fetched", result.TotalFetched,
		"total_detected", result.TotalDetected,
		"total_skipped", result.TotalSkipped,
		"elapsed", result.Elapsed,
	)

	return result
}

// ScanMailbox lists the user's recent messages, extracts the new ones and
// folds subscription signals into the store.
func (r *Runner) ScanMailbox(ctx context.Context, httpClient *http.Client, tenantAlias, userID string) (ur UserResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveScan(err == nil, start) }()

	ur.UserID = userID
	since := r.now().Add(-r.lookback)

	ids, err := r.mail.ListMessages(ctx, httpClient, userID, since)
	if err != nil {
		return ur, fmt.Errorf("list messages: %w", err)
	}

	var msgs []models.EmailMessage
	for _, id := range ids {
		key := dedup.MessageKey(userID, id)
		if r.dedup != nil {
			isNew, err := r.dedup.IsNew(ctx, key)
			if err != nil {
				slog.Warn("dedup check failed", "message_id", id, "error", err)
			} else if !isNew {
				ur.Skipped++
				continue
			}
		}

		msg, err := r.mail.FetchMessage(ctx, httpClient, userID, id)
		if err != nil {
			slog.Warn("fetch message failed",
				"user", userID,
				"message_id", id,
				"error", err,
			)
			ur.Errors++
			r.forget(ctx, key)
			continue
		}
		if msg == nil {
			ur.Skipped++
			continue
		}
		msgs = append(msgs, *msg)
	}

	ur.Fetched = len(msgs)
	metrics.EmailsScanned.WithLabelValues(tenantAlias).Add(float64(ur.Fetched))
	metrics.EmailsSkipped.WithLabelValues(tenantAlias).Add(float64(ur.Skipped))

	// Fold oldest first so the latest email decides current state.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})
	bundles := r.extractor.ExtractBatch(msgs)

	for i, b := range bundles {
		if !b.HasSubscriptionSignal() {
			continue
		}
		metrics.SignalsExtracted.WithLabelValues(string(b.EmailType)).Inc()

		msg := msgs[i]
		name := subscription.Name(b, msg)
		if name == "" {
			continue
		}

		existing, err := r.store.Get(ctx, userID, name)
		if err != nil {
			slog.Warn("load subscription failed", "user", userID, "name", name, "error", err)
			ur.Errors++
			r.forget(ctx, dedup.MessageKey(userID, msg.MessageID))
			continue
		}

		sub := subscription.Fold(existing, b, msg, r.now())
		if err := r.store.Upsert(ctx, sub); err != nil {
			slog.Warn("save subscription failed", "user", userID, "name", name, "error", err)
			ur.Errors++
			r.forget(ctx, dedup.MessageKey(userID, msg.MessageID))
			continue
		}

		slog.Debug("subscription updated",
			"user", userID,
			"name", sub.Name,
			"email_type", b.EmailType,
			"message_id", msg.MessageID,
		)
		ur.Detected++
	}

	slog.Info("user mailbox scanned",
		"tenant", tenantAlias,
		"user", userID,
		"fetched", ur.Fetched,
		"detected", ur.Detected,
		"skipped", ur.Skipped,
		"errors", ur.Errors,
	)

	return ur, nil
}

// forget lets a message be picked up again on the next scan.
func (r *Runner) forget(ctx context.Context, key string) {
	if r.dedup == nil {
		return
	}
	if err := r.dedup.Forget(ctx, key); err != nil {
		slog.Warn("dedup reset failed", "key", key, "error", err)
	}
}

// RunAlerts evaluates every active subscription and hands the ordered
// notifications to the sink.
func (r *Runner) RunAlerts(ctx context.Context) (alerts.Summary, error) {
	subs, err := r.store.ListActive(ctx)
	if err != nil {
		return alerts.Summary{}, fmt.Errorf("list active subscriptions: %w", err)
	}

	notifications := r.engine.Generate(subs)
	metrics.RecordNotifications(notifications)
	summary := alerts.Summarize(notifications)

	if r.sink != nil && len(notifications) > 0 {
		if err := r.sink.Deliver(ctx, notifications); err != nil {
			return summary, fmt.Errorf("deliver notifications: %w", err)
		}
	}

	spend := SpendReport(subs, r.rates)
	slog.Info("alert pass complete",
		"subscriptions", len(subs),
		"notifications", summary.Total,
		"urgent", summary.Urgent,
		"high", summary.High,
		"monthly_spend_usd", spend.MonthlyUSD.StringFixed(2),
		"potential_savings_usd", spend.SavingsUSD.StringFixed(2),
	)

	return summary, nil
}

// Start runs a scan of every mailbox and an alert pass immediately, then
// repeats them at their intervals until Stop is called or ctx ends.
func (r *Runner) Start(ctx context.Context, mailboxes []Mailbox, scanInterval, alertInterval time.Duration) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	scanAll := func() {
		for _, mb := range mailboxes {
			r.Scan(loopCtx, mb)
		}
	}
	runAlerts := func() {
		if _, err := r.RunAlerts(loopCtx); err != nil {
			slog.Error("periodic alert pass failed", "error", err)
		}
	}

	r.wg.Add(2)
	go r.loop(loopCtx, scanInterval, scanAll)
	go r.loop(loopCtx, alertInterval, runAlerts)

	slog.Info("periodic scan started",
		"mailboxes", len(mailboxes),
		"scan_interval", scanInterval,
		"alert_interval", alertInterval,
	)
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, run func()) {
	defer r.wg.Done()

	run()

	if interval <= 0 {
		slog.Warn("non-positive interval, loop runs once", "interval", interval)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Stop shuts down the periodic loops and waits for them to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
