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

// Package alerts evaluates subscription snapshots against a fixed rule set
// and produces notifications ordered by priority.
//
// The engine is stateless: it never stores or delivers what it produces.
// Callers hand the result to a Sink.
package alerts

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/killswitch/scanner/internal/models"
)

// Sink receives the ordered notifications of one evaluation pass. It owns
// delivery, deduplication against earlier passes, and read state.
type Sink interface {
	Deliver(ctx context.Context, notifications []models.Notification) error
}

// Engine runs the rule set over subscriptions.
type Engine struct {
	rules       []rule
	now         func() time.Time
	concurrency int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConcurrency bounds how many subscriptions are evaluated at once.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an engine with the standard rules, evaluated per
// subscription in this order: trial ending, renewal reminder, low usage,
// price increase, forgotten subscription.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		rules: []rule{
			checkTrial,
			checkRenewal,
			checkLowUsage,
			checkPriceIncrease,
			checkForgotten,
		},
		now:         time.Now,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate evaluates every rule against every subscription and returns
// the notifications sorted urgent first. Equal priorities keep their
// generation order: input order of subscriptions, then rule order.
func (e *Engine) Generate(subs []models.Subscription) []models.Notification {
	now := e.now()
	perSub := make([][]models.Notification, len(subs))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range subs {
		g.Go(func() error {
			perSub[i] = e.evaluate(subs[i], now)
			return nil
		})
	}
	// All rule checks must finish before sorting.
	_ = g.Wait()

	var out []models.Notification
	for _, ns := range perSub {
		out = append(out, ns...)
	}
	SortByPriority(out)
	return out
}

func (e *Engine) evaluate(sub models.Subscription, now time.Time) []models.Notification {
	var out []models.Notification
	for _, r := range e.rules {
		if n := r(sub, now); n != nil {
			out = append(out, *n)
		}
	}
	return out
}

// SortByPriority stably sorts notifications urgent, high, medium, low.
func SortByPriority(ns []models.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].Priority.Rank() < ns[j].Priority.Rank()
	})
}

// Summary aggregates one pass of notifications.
type Summary struct {
	Total  int                             `json:"total"`
	Urgent int                             `json:"urgent"`
	High   int                             `json:"high"`
	ByType map[models.NotificationType]int `json:"by_type"`
}

// Summarize counts notifications by priority and type.
func Summarize(ns []models.Notification) Summary {
	s := Summary{
		Total:  len(ns),
		ByType: make(map[models.NotificationType]int),
	}
	for _, n := range ns {
		switch n.Priority {
		case models.PriorityUrgent:
			s.Urgent++
		case models.PriorityHigh:
			s.High++
		}
		s.ByType[n.Type]++
	}
	return s
}
