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
	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/currency"
	"github.com/killswitch/scanner/internal/models"
)

// Tip is a savings hint for one subscription.
type Tip struct {
	SubscriptionID string          `json:"subscription_id"`
	Name           string          `json:"name"`
	Tip            string          `json:"tip"`
	SavingsUSD     decimal.Decimal `json:"savings_usd"`
}

// Spend totals monthly cost and savings hints in USD.
type Spend struct {
	MonthlyUSD decimal.Decimal `json:"monthly_usd"`
	SavingsUSD decimal.Decimal `json:"savings_usd"`
	Tips       []Tip           `json:"tips,omitempty"`
}

// SpendReport normalises every subscription price to USD and collects the
// catalog's optimization tips. A nil normalizer uses the default rates.
func SpendReport(subs []models.Subscription, norm *currency.Normalizer) Spend {
	if norm == nil {
		norm = currency.NewNormalizer(nil)
	}

	report := Spend{MonthlyUSD: decimal.Zero, SavingsUSD: decimal.Zero}
	for _, sub := range subs {
		usd := norm.ToUSD(sub.Price, currency.CodeForSymbol(sub.Currency))
		report.MonthlyUSD = report.MonthlyUSD.Add(usd)

		tip, savings := catalog.OptimizationTip(sub.Name, usd)
		if !savings.IsPositive() {
			continue
		}
		report.SavingsUSD = report.SavingsUSD.Add(savings)
		report.Tips = append(report.Tips, Tip{
			SubscriptionID: sub.ID,
			Name:           sub.Name,
			Tip:            tip,
			SavingsUSD:     savings,
		})
	}
	return report
}
