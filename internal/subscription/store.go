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

// Package subscription persists detected subscriptions in Postgres and
// folds extracted email signals into them.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/models"
)

// Store provides CRUD operations for subscriptions in Postgres. Reads
// refresh the day counters against the store's clock.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore creates a subscription store backed by the given Postgres pool.
// It ensures the subscriptions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure subscription schema: %w", err)
	}
	slog.Info("subscription store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			name              TEXT NOT NULL,
			category          TEXT DEFAULT '',
			price             NUMERIC(12,2) NOT NULL DEFAULT 0,
			currency          TEXT DEFAULT '$',
			is_trial          BOOLEAN DEFAULT FALSE,
			next_boundary_at  TIMESTAMPTZ,
			usage_level       DOUBLE PRECISION,
			price_increased   BOOLEAN DEFAULT FALSE,
			old_price         NUMERIC(12,2),
			last_viewed_at    TIMESTAMPTZ,
			cancel_url        TEXT DEFAULT '',
			payment_method    TEXT DEFAULT '',
			renewal_date_text TEXT DEFAULT '',
			status            TEXT DEFAULT 'active',
			last_email_at     TIMESTAMPTZ,
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(user_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_subs_user ON subscriptions(user_id);
		CREATE INDEX IF NOT EXISTS idx_subs_status ON subscriptions(status);
	`)
	return err
}

const selectColumns = `
	SELECT id, user_id, name, category, price::text, currency, is_trial,
	       next_boundary_at, usage_level, price_increased, old_price::text,
	       last_viewed_at, cancel_url, payment_method, renewal_date_text,
	       status, last_email_at, updated_at
	FROM subscriptions`

// Upsert inserts or updates a subscription keyed on (user_id, name). Usage
// and view tracking are owned by UpdateUsage and TouchViewed and are not
// overwritten.
func (s *Store) Upsert(ctx context.Context, sub models.Subscription) error {
	var oldPrice *string
	if sub.OldPrice.Valid {
		v := sub.OldPrice.Decimal.String()
		oldPrice = &v
	}
	var lastEmail *time.Time
	if !sub.LastEmailAt.IsZero() {
		lastEmail = &sub.LastEmailAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions
			(id, user_id, name, category, price, currency, is_trial, next_boundary_at,
			 price_increased, old_price, cancel_url, payment_method, renewal_date_text,
			 status, last_email_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10::numeric, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, name) DO UPDATE SET
			category          = EXCLUDED.category,
			price             = EXCLUDED.price,
			currency          = EXCLUDED.currency,
			is_trial          = EXCLUDED.is_trial,
			next_boundary_at  = EXCLUDED.next_boundary_at,
			price_increased   = EXCLUDED.price_increased,
			old_price         = EXCLUDED.old_price,
			cancel_url        = EXCLUDED.cancel_url,
			payment_method    = EXCLUDED.payment_method,
			renewal_date_text = EXCLUDED.renewal_date_text,
			status            = EXCLUDED.status,
			last_email_at     = EXCLUDED.last_email_at,
			updated_at        = NOW()
	`, sub.ID, sub.UserID, sub.Name, string(sub.Category), sub.Price.String(), sub.Currency,
		sub.IsTrial, sub.NextBoundaryAt, sub.PriceIncreased, oldPrice, sub.CancelURL,
		sub.PaymentMethod, sub.RenewalDateText, sub.Status, lastEmail)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.Name, err)
	}
	return nil
}

// Get retrieves a user's subscription by vendor name. It returns nil, nil
// when none exists.
func (s *Store) Get(ctx context.Context, userID, name string) (*models.Subscription, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
		WHERE user_id = $1 AND name = $2
	`, userID, name)
	return s.scanRecord(row)
}

// ListByUser returns all subscriptions for a user.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectRecords(rows)
}

// ListActive returns every active subscription across users.
func (s *Store) ListActive(ctx context.Context) ([]models.Subscription, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE status = 'active'
		ORDER BY user_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectRecords(rows)
}

// TouchViewed records that the user looked at the subscription.
func (s *Store) TouchViewed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET last_viewed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// UpdateUsage stores a usage level, clamped to [0,1].
func (s *Store) UpdateUsage(ctx context.Context, id string, level float64) error {
	level = min(max(level, 0), 1)
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET usage_level = $1, updated_at = NOW()
		WHERE id = $2
	`, level, id)
	return err
}

// MarkStatus sets the status of a subscription (active, cancelled).
func (s *Store) MarkStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	return err
}

// scanRecord scans a single row into a Subscription.
func (s *Store) scanRecord(row pgx.Row) (*models.Subscription, error) {
	sub, err := s.scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// collectRecords scans multiple rows into a slice of Subscriptions. A row
// that fails to parse is logged and skipped; only a failure of the result
// set itself is returned.
func (s *Store) collectRecords(rows pgx.Rows) ([]models.Subscription, error) {
	var subs []models.Subscription
	for rows.Next() {
		sub, err := s.scanRow(rows)
		if err != nil {
			slog.Warn("skipping unreadable subscription row", "error", err)
			continue
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) scanRow(row pgx.Row) (*models.Subscription, error) {
	var (
		sub       models.Subscription
		category  string
		price     string
		oldPrice  *string
		lastEmail *time.Time
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Name, &category, &price, &sub.Currency, &sub.IsTrial,
		&sub.NextBoundaryAt, &sub.UsageLevel, &sub.PriceIncreased, &oldPrice,
		&sub.LastViewedAt, &sub.CancelURL, &sub.PaymentMethod, &sub.RenewalDateText,
		&sub.Status, &lastEmail, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	sub.Category = models.Category(category)
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	sub.Price = p
	if oldPrice != nil {
		op, err := decimal.NewFromString(*oldPrice)
		if err != nil {
			return nil, fmt.Errorf("parse old price %q: %w", *oldPrice, err)
		}
		sub.OldPrice = decimal.NewNullDecimal(op)
	}
	if lastEmail != nil {
		sub.LastEmailAt = *lastEmail
	}

	Refresh(&sub, s.now())
	return &sub, nil
}
