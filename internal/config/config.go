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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TenantConfig holds Graph credentials and the mailboxes to scan for a
// single tenant.
type TenantConfig struct {
	Alias        string
	Provider     string // "m365"
	TenantID     string
	ClientID     string
	ClientSecret string
	Users        []string
	ExcludeUsers []string
}

// ScanConfig controls the mailbox scan and alert loops.
type ScanConfig struct {
	Interval      time.Duration
	Lookback      time.Duration
	Concurrency   int
	AlertInterval time.Duration
}

// LogConfig controls the process logger. An empty File logs to stdout only.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config holds all configuration for the scanner service.
type Config struct {
	Tenants []TenantConfig

	DatabaseURL string

	// Redis
	RedisURL           string
	NotificationsQueue string

	Scan ScanConfig

	// CurrencyRates overrides or extends the built-in USD rate table.
	CurrencyRates map[string]float64

	// CatalogPath optionally replaces the built-in vendor catalog.
	CatalogPath string

	Log LogConfig

	// Server (health and metrics)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenants []struct {
		Alias        string   `yaml:"alias"`
		Provider     string   `yaml:"provider"`
		TenantID     string   `yaml:"tenant_id"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		Users        []string `yaml:"users"`
		ExcludeUsers []string `yaml:"exclude_users"`
	} `yaml:"tenants"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Notifications string `yaml:"notifications"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Scan struct {
		Interval      string `yaml:"interval"`
		Lookback      string `yaml:"lookback"`
		Concurrency   int    `yaml:"concurrency"`
		AlertInterval string `yaml:"alert_interval"`
	} `yaml:"scan"`
	Currency struct {
		Rates map[string]float64 `yaml:"rates"`
	} `yaml:"currency"`
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Load reads configuration from the file named by CONFIG_PATH (with env
// var expansion) and environment variables for non-YAML settings.
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from configPath.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. ${VAR} references are expanded
// before parsing.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:        firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/subscriptions")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		NotificationsQueue: firstNonEmpty(raw.Redis.Queues.Notifications, envOrDefault("NOTIFICATIONS_QUEUE", "notifications")),
		Scan: ScanConfig{
			Interval:      durationOrDefault(raw.Scan.Interval, "SCAN_INTERVAL", 15*time.Minute),
			Lookback:      durationOrDefault(raw.Scan.Lookback, "SCAN_LOOKBACK", 72*time.Hour),
			Concurrency:   positiveOr(raw.Scan.Concurrency, envOrDefaultInt("SCAN_CONCURRENCY", 8)),
			AlertInterval: durationOrDefault(raw.Scan.AlertInterval, "ALERT_INTERVAL", 24*time.Hour),
		},
		CurrencyRates: raw.Currency.Rates,
		CatalogPath:   firstNonEmpty(raw.Catalog.Path, os.Getenv("CATALOG_PATH")),
		Log: LogConfig{
			Level:      firstNonEmpty(raw.Log.Level, envOrDefault("LOG_LEVEL", "info")),
			File:       firstNonEmpty(raw.Log.File, os.Getenv("LOG_FILE")),
			MaxSizeMB:  positiveOr(raw.Log.MaxSizeMB, 100),
			MaxBackups: positiveOr(raw.Log.MaxBackups, 3),
			MaxAgeDays: positiveOr(raw.Log.MaxAgeDays, 28),
		},
		Port: envOrDefaultInt("PORT", 8080),
	}

	// Build tenant configs
	for _, t := range raw.Tenants {
		tc := TenantConfig{
			Alias:        t.Alias,
			Provider:     t.Provider,
			TenantID:     t.TenantID,
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
		}

		// Skip tenants with empty credentials (commented out in YAML)
		if tc.TenantID == "" || tc.ClientID == "" || tc.ClientSecret == "" {
			continue
		}

		if tc.Alias == "" {
			tc.Alias = tc.TenantID[:min(8, len(tc.TenantID))]
		}

		if tc.Provider == "" {
			tc.Provider = "m365"
		}

		for _, u := range t.Users {
			if u = strings.TrimSpace(u); u != "" {
				tc.Users = append(tc.Users, u)
			}
		}
		for _, u := range t.ExcludeUsers {
			if u = strings.TrimSpace(u); u != "" {
				tc.ExcludeUsers = append(tc.ExcludeUsers, u)
			}
		}

		cfg.Tenants = append(cfg.Tenants, tc)
	}

	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("no tenants configured: check config.yaml and environment variables")
	}

	return cfg, nil
}

// Tenant returns the tenant with the given alias.
func (c *Config) Tenant(alias string) (*TenantConfig, bool) {
	for i := range c.Tenants {
		if c.Tenants[i].Alias == alias {
			return &c.Tenants[i], true
		}
	}
	return nil, false
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// durationOrDefault prefers the YAML value, then the env var, then fallback.
func durationOrDefault(yamlValue, key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(yamlValue)); err == nil && d > 0 {
		return d
	}
	return envOrDefaultDuration(key, fallback)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
