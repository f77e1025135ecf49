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

// Package currency converts amounts between currencies using a fixed rate
// table. Rates are conversion factors relative to USD, not live quotes.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// USD is the default target currency.
const USD = "USD"

// DefaultRates is the built-in rate table, expressed as units per USD.
var DefaultRates = map[string]float64{
	"USD": 1.0,
	"GBP": 0.79,
	"NGN": 1500.0,
}

var symbolToCode = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
	"₦": "NGN",
}

// Normalizer converts amounts with a static rate table. The zero value has
// an empty table and passes every amount through unconverted.
type Normalizer struct {
	rates map[string]decimal.Decimal
}

// NewNormalizer builds a normalizer from DefaultRates with overrides
// applied on top. Non-positive override rates are ignored.
func NewNormalizer(overrides map[string]float64) *Normalizer {
	n := &Normalizer{rates: make(map[string]decimal.Decimal, len(DefaultRates)+len(overrides))}
	for code, rate := range DefaultRates {
		n.rates[code] = decimal.NewFromFloat(rate)
	}
	for code, rate := range overrides {
		if rate <= 0 {
			continue
		}
		n.rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return n
}

// Normalize converts amount from one currency code to another. Codes
// missing from the table degrade silently: an unknown source is treated as
// USD and an unknown target returns the USD amount.
func (n *Normalizer) Normalize(amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == to {
		return amount
	}

	usd := amount
	if rate, ok := n.rate(from); ok {
		usd = amount.Div(rate)
	}

	if rate, ok := n.rate(to); ok {
		return usd.Mul(rate)
	}
	return usd
}

// ToUSD is Normalize with USD as the target.
func (n *Normalizer) ToUSD(amount decimal.Decimal, from string) decimal.Decimal {
	return n.Normalize(amount, from, USD)
}

// Rate returns the table entry for code.
func (n *Normalizer) Rate(code string) (decimal.Decimal, bool) {
	return n.rate(code)
}

func (n *Normalizer) rate(code string) (decimal.Decimal, bool) {
	if n == nil || n.rates == nil {
		return decimal.Decimal{}, false
	}
	r, ok := n.rates[code]
	if !ok || r.IsZero() {
		return decimal.Decimal{}, false
	}
	return r, true
}

// CodeForSymbol maps a currency symbol ($, £, €, ₦) to its code. Inputs
// that are already codes are upper-cased and returned; unknown symbols map
// to USD.
func CodeForSymbol(symbol string) string {
	if code, ok := symbolToCode[symbol]; ok {
		return code
	}
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) == 3 {
		return s
	}
	return USD
}

// SymbolForCode is the inverse of CodeForSymbol. Unknown codes are returned
// unchanged.
func SymbolForCode(code string) string {
	code = strings.ToUpper(code)
	for sym, c := range symbolToCode {
		if c == code {
			return sym
		}
	}
	return code
}
