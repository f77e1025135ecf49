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

// Package catalog maps noisy sender and vendor strings to canonical
// subscription services.
//
// The catalog is an ordered list. Lookups scan it front to back and the
// first signature with a keyword contained in the input wins, so entry
// order is the precedence order when keyword sets overlap.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/killswitch/scanner/internal/models"
)

// Signature is the canonical record for one subscription service.
type Signature struct {
	Name      string          `yaml:"name"`
	Category  models.Category `yaml:"category"`
	CancelURL string          `yaml:"cancel_url"`
	Keywords  []string        `yaml:"keywords"`
}

// Match is the result of a catalog lookup.
type Match struct {
	Name      string
	Category  models.Category
	CancelURL string // empty when unknown
	Matched   bool
}

// Catalog is an immutable, ordered set of signatures.
type Catalog struct {
	entries []Signature
}

// New builds a catalog from signatures in the given order. Keywords are
// lower-cased once here; blank keywords are dropped.
func New(signatures []Signature) *Catalog {
	entries := make([]Signature, 0, len(signatures))
	for _, s := range signatures {
		kws := make([]string, 0, len(s.Keywords))
		for _, kw := range s.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if s.Category == "" {
			s.Category = models.CategoryOther
		}
		s.Keywords = kws
		entries = append(entries, s)
	}
	return &Catalog{entries: entries}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(builtin)
}

// LoadFile reads a YAML list of signatures. An empty file yields an empty
// catalog, which matches nothing.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var raw struct {
		Signatures []Signature `yaml:"signatures"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return New(raw.Signatures), nil
}

// Len returns the number of signatures.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Signatures returns a copy of the catalog entries in lookup order.
func (c *Catalog) Signatures() []Signature {
	if c == nil {
		return nil
	}
	out := make([]Signature, len(c.entries))
	copy(out, c.entries)
	return out
}

// Match resolves raw vendor text to a canonical signature. Unmatched input
// passes through verbatim with category Other and no cancel URL.
func (c *Catalog) Match(raw string) Match {
	lower := strings.ToLower(raw)
	if c != nil {
		for _, s := range c.entries {
			for _, kw := range s.Keywords {
				if strings.Contains(lower, kw) {
					return Match{
						Name:      s.Name,
						Category:  s.Category,
						CancelURL: s.CancelURL,
						Matched:   true,
					}
				}
			}
		}
	}
	return Match{Name: raw, Category: models.CategoryOther}
}
