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

// Package queue publishes notifications to Redis as Celery-compatible
// tasks for the delivery workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/killswitch/scanner/internal/dedup"
	"github.com/killswitch/scanner/internal/metrics"
	"github.com/killswitch/scanner/internal/models"
)

// DeliverTask is the Celery task name the delivery workers register.
const DeliverTask = "notifications.tasks.deliver_notification"

// Deduper suppresses notifications already delivered.
type Deduper interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Publisher sends notifications to Redis in Celery task format. It
// implements alerts.Sink.
type Publisher struct {
	rdb       redis.Cmdable
	queueName string
	dedup     Deduper
}

// NewPublisher creates a new Redis publisher targeting the specified
// queue. A nil dedup delivers every notification.
func NewPublisher(rdb redis.Cmdable, queueName string, dedup Deduper) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		dedup:     dedup,
	}
}

// celeryTask represents a Celery-compatible task message.
type celeryTask struct {
	ID      string        `json:"id"`
	Task    string        `json:"task"`
	Args    []interface{} `json:"args"`
	Kwargs  interface{}   `json:"kwargs"`
	Retries int           `json:"retries"`
	ETA     *string       `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// notificationPayload is the task argument: the notification plus its
// derived identity.
type notificationPayload struct {
	NotificationID string `json:"notification_id"`
	models.Notification
}

// Deliver publishes notifications in order. Notifications already
// delivered today are skipped. A failed publish does not stop the rest;
// all failures are returned joined.
func (p *Publisher) Deliver(ctx context.Context, notifications []models.Notification) error {
	var errs []error
	published, skipped := 0, 0

	for _, n := range notifications {
		key := dedup.NotificationKey(n)
		if p.dedup != nil {
			isNew, err := p.dedup.IsNew(ctx, key)
			if err != nil {
				slog.Warn("notification dedup check failed", "subscription_id", n.SubscriptionID, "error", err)
			} else if !isNew {
				skipped++
				continue
			}
		}

		if err := p.publish(ctx, n); err != nil {
			metrics.DeliveryFailures.Inc()
			errs = append(errs, fmt.Errorf("publish %s for %s: %w", n.Type, n.SubscriptionID, err))
			// Let the next pass retry it.
			if p.dedup != nil {
				if ferr := p.dedup.Forget(ctx, key); ferr != nil {
					slog.Warn("notification dedup reset failed", "subscription_id", n.SubscriptionID, "error", ferr)
				}
			}
			continue
		}
		published++
	}

	slog.Info("notifications delivered",
		"queue", p.queueName,
		"published", published,
		"skipped", skipped,
		"failed", len(errs),
	)

	return errors.Join(errs...)
}

// publish serialises one notification and pushes it as a Celery task.
func (p *Publisher) publish(ctx context.Context, n models.Notification) error {
	msgJSON, taskID, err := p.envelope(n)
	if err != nil {
		return err
	}

	// Celery consumes with BRPOP, so producers LPUSH.
	if err := p.rdb.LPush(ctx, p.queueName, msgJSON).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published notification to queue",
		"task_id", taskID,
		"subscription_id", n.SubscriptionID,
		"type", n.Type,
		"queue", p.queueName,
	)
	return nil
}

func (p *Publisher) envelope(n models.Notification) (string, string, error) {
	payload, err := json.Marshal(notificationPayload{NotificationID: n.ID(), Notification: n})
	if err != nil {
		return "", "", fmt.Errorf("marshal notification: %w", err)
	}

	taskID := uuid.New().String()

	task := celeryTask{
		ID:     taskID,
		Task:   DeliverTask,
		Args:   []interface{}{string(payload)},
		Kwargs: map[string]interface{}{},
	}

	taskBody, err := json.Marshal(task)
	if err != nil {
		return "", "", fmt.Errorf("marshal celery task: %w", err)
	}

	msg := celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]interface{}{
			"lang":    "py",
			"task":    DeliverTask,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]interface{}{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       p.queueName,
			"routing_key":    p.queueName,
			"delivery_info": map[string]string{
				"exchange":    p.queueName,
				"routing_key": p.queueName,
			},
		},
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", "", fmt.Errorf("marshal celery message: %w", err)
	}
	return string(msgJSON), taskID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
