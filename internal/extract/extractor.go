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

// Package extract turns the subject and body of a billing email into a
// SignalBundle by running a set of independent pattern detectors. No
// detector fails: a missing signal is reported as an absent value.
package extract

import (
	"golang.org/x/sync/errgroup"

	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/models"
)

// DefaultConcurrency bounds ExtractBatch when no limit is configured.
const DefaultConcurrency = 8

// Extractor runs the detectors and resolves the sender through a vendor
// catalog. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	catalog     *catalog.Catalog
	concurrency int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency sets the fan-out limit used by ExtractBatch.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an extractor. A nil catalog matches no vendors.
func New(cat *catalog.Catalog, opts ...Option) *Extractor {
	e := &Extractor{
		catalog:     cat,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the signal bundle for one email.
func (e *Extractor) Extract(subject, body, sender string) models.SignalBundle {
	var b models.SignalBundle

	b.IsTrial, b.TrialDaysRemaining = DetectTrial(subject, body)
	b.Price, b.CurrencySymbol = ExtractPrice(combine(subject, body))
	b.RenewalDateText = ExtractRenewalDate(subject, body)
	b.CancellationURL = ResolveCancellationURL(sender, body)
	b.PaymentMethodLabel = ExtractPaymentMethod(body)
	b.EmailType = Categorize(subject, body)
	b.PriceChange = DetectPriceChange(subject, body)

	vendor := e.catalog.Match(sender)
	b.VendorName = vendor.Name
	b.VendorCategory = vendor.Category

	return b
}

// ExtractMessage is Extract over an EmailMessage.
func (e *Extractor) ExtractMessage(msg models.EmailMessage) models.SignalBundle {
	return e.Extract(msg.Subject, msg.Body, msg.SenderDisplayName)
}

// ExtractBatch extracts every message concurrently, bounded by the
// configured limit. The result is index-aligned with msgs.
func (e *Extractor) ExtractBatch(msgs []models.EmailMessage) []models.SignalBundle {
	out := make([]models.SignalBundle, len(msgs))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range msgs {
		g.Go(func() error {
			out[i] = e.ExtractMessage(msgs[i])
			return nil
		})
	}
	_ = g.Wait()

	return out
}
