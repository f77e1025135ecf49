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

// Package metrics exposes Prometheus counters for the scan and alert loops.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/killswitch/scanner/internal/models"
)

var (
	scanBuckets = []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}

	// EmailsScanned counts messages fetched and run through extraction, by tenant.
	EmailsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscan_emails_scanned_total",
			Help: "Total number of emails fetched and extracted, by tenant.",
		},
		[]string{"tenant"},
	)

	// EmailsSkipped counts messages skipped as already seen or deleted.
	EmailsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscan_emails_skipped_total",
			Help: "Total number of emails skipped as duplicates or missing, by tenant.",
		},
		[]string{"tenant"},
	)

	// SignalsExtracted counts subscription-bearing bundles, by email type.
	SignalsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscan_signals_extracted_total",
			Help: "Total number of emails carrying a subscription signal, by email type.",
		},
		[]string{"email_type"},
	)

	// NotificationsGenerated counts alert engine output, by type and priority.
	NotificationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscan_notifications_generated_total",
			Help: "Total number of notifications generated, by type and priority.",
		},
		[]string{"type", "priority"},
	)

	// DeliveryFailures counts notifications that could not be queued.
	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscan_delivery_failures_total",
			Help: "Total number of notifications that failed to reach the delivery queue.",
		},
	)

	// ScanDuration measures one mailbox scan.
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscan_mailbox_scan_duration_seconds",
			Help:    "Histogram of mailbox scan duration in seconds, by success status.",
			Buckets: scanBuckets,
		},
		[]string{"success"},
	)
)

// Handler returns the HTTP handler for the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan records the duration of a mailbox scan started at start.
func ObserveScan(success bool, start time.Time) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	ScanDuration.WithLabelValues(successStr).Observe(time.Since(start).Seconds())
}

// RecordNotifications counts one pass of engine output.
func RecordNotifications(ns []models.Notification) {
	for _, n := range ns {
		NotificationsGenerated.WithLabelValues(string(n.Type), string(n.Priority)).Inc()
	}
}
