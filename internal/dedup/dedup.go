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

// Package dedup remembers scanned message IDs and delivered notifications
// in Redis with a TTL, so overlapping scan windows and repeated alert
// passes do not process the same thing twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/killswitch/scanner/internal/models"
)

const (
	// DefaultTTL is how long a seen key is remembered. It must outlive the
	// scan lookback window.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "subscan:seen:"
)

// Filter tracks which keys have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A zero ttl uses
// DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsNew returns true if key has NOT been seen before. If true, the key is
// marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, key string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, keyPrefix+key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget clears key so it is treated as new again.
func (f *Filter) Forget(ctx context.Context, key string) error {
	if err := f.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

// MessageKey identifies a scanned message within a mailbox.
func MessageKey(userID, messageID string) string {
	return fmt.Sprintf("msg:%s:%s", userID, messageID)
}

// NotificationKey identifies a delivered notification by subscription,
// type and UTC calendar day, so each alert goes out at most once a day.
func NotificationKey(n models.Notification) string {
	return fmt.Sprintf("notif:%s:%s:%s", n.SubscriptionID, n.Type, n.CreatedAt.UTC().Format("2006-01-02"))
}
