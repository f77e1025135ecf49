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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/killswitch/scanner/internal/alerts"
	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/config"
	"github.com/killswitch/scanner/internal/currency"
	"github.com/killswitch/scanner/internal/dedup"
	"github.com/killswitch/scanner/internal/discovery"
	"github.com/killswitch/scanner/internal/extract"
	"github.com/killswitch/scanner/internal/graph"
	"github.com/killswitch/scanner/internal/logging"
	"github.com/killswitch/scanner/internal/models"
	"github.com/killswitch/scanner/internal/queue"
	"github.com/killswitch/scanner/internal/scanner"
	"github.com/killswitch/scanner/internal/subscription"
)

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "subscan",
		Short: "Find subscriptions in billing emails and raise alerts",
		Long: `subscan scans mailboxes for billing emails, keeps a record of the
subscriptions it finds, and raises alerts for trials about to end, upcoming
renewals, price increases, low usage and forgotten subscriptions.

The extract and alerts commands work offline on JSON files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logger, _ := logging.New(config.LogConfig{Level: level}, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("catalog", "", "vendor catalog YAML (default: built-in)")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newAlertsCmd())

	return rootCmd
}

func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// extractResult is one line of extract output.
type extractResult struct {
	MessageID   string              `json:"message_id,omitempty"`
	Subject     string              `json:"subject"`
	Signals     models.SignalBundle `json:"signals"`
	Alert       bool                `json:"alert"`
	AlertReason string              `json:"alert_reason,omitempty"`
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <emails.json|->",
		Short: "Extract subscription signals from a JSON array of emails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			var msgs []models.EmailMessage
			if err := readJSON(cmd, args[0], &msgs); err != nil {
				return err
			}

			bundles := extract.New(cat, extract.WithConcurrency(concurrency)).ExtractBatch(msgs)

			results := make([]extractResult, len(msgs))
			for i, b := range bundles {
				alert, reason := extract.ShouldAlert(b.EmailType, b.TrialDaysRemaining)
				results[i] = extractResult{
					MessageID:   msgs[i].MessageID,
					Subject:     msgs[i].Subject,
					Signals:     b,
					Alert:       alert,
					AlertReason: reason,
				}
			}
			return writeJSON(cmd, results)
		},
	}
	cmd.Flags().Int("concurrency", extract.DefaultConcurrency, "parallel extractions")
	return cmd
}

// alertsResult is the output of the alerts command.
type alertsResult struct {
	Notifications []models.Notification `json:"notifications"`
	Summary       alerts.Summary        `json:"summary"`
	Spend         scanner.Spend         `json:"spend"`
}

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts <subscriptions.json|->",
		Short: "Evaluate alert rules over a JSON array of subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nowFlag, _ := cmd.Flags().GetString("now")
			now := time.Now().UTC()
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("invalid --now %q: %w", nowFlag, err)
				}
				now = t
			}
			rates, _ := cmd.Flags().GetStringToString("rate")
			overrides, err := parseRates(rates)
			if err != nil {
				return err
			}

			var subs []models.Subscription
			if err := readJSON(cmd, args[0], &subs); err != nil {
				return err
			}

			engine := alerts.NewEngine(alerts.WithClock(func() time.Time { return now }))
			notifications := engine.Generate(subs)
			if notifications == nil {
				notifications = []models.Notification{}
			}

			return writeJSON(cmd, alertsResult{
				Notifications: notifications,
				Summary:       alerts.Summarize(notifications),
				Spend:         scanner.SpendReport(subs, currency.NewNormalizer(overrides)),
			})
		},
	}
	cmd.Flags().String("now", "", "evaluation time, RFC3339 (default: current time)")
	cmd.Flags().StringToString("rate", nil, "currency rate override per USD, e.g. --rate EUR=0.92")
	return cmd
}

func parseRates(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for code, v := range raw {
		var rate float64
		if _, err := fmt.Sscanf(v, "%g", &rate); err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %q", code, v)
		}
		out[code] = rate
	}
	return out, nil
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan tenant mailboxes once and update stored subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantAlias, _ := cmd.Flags().GetString("tenant")
			usersFlag, _ := cmd.Flags().GetString("users")
			since, _ := cmd.Flags().GetDuration("since")
			runAlerts, _ := cmd.Flags().GetBool("alerts")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			tenant, ok := cfg.Tenant(tenantAlias)
			if !ok {
				return fmt.Errorf("tenant %q not found in configuration", tenantAlias)
			}

			if users := splitUsers(usersFlag); len(users) > 0 {
				tenant.Users = users
			}

			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("catalog"); path == "" && cfg.CatalogPath != "" {
				if cat, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("create Postgres pool: %w", err)
			}
			defer pgPool.Close()

			store, err := subscription.NewStore(ctx, pgPool)
			if err != nil {
				return err
			}

			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(opt)
			defer rdb.Close()

			filter := dedup.NewFilter(rdb, 2*since)
			publisher := queue.NewPublisher(rdb, cfg.NotificationsQueue, filter)
			if err := publisher.Ping(ctx); err != nil {
				return fmt.Errorf("connect to Redis: %w", err)
			}

			runner := scanner.NewRunner(scanner.RunnerConfig{
				Mail:      graph.NewClient(graph.DefaultBaseURL, 0),
				Extractor: extract.New(cat, extract.WithConcurrency(cfg.Scan.Concurrency)),
				Store:     store,
				Dedup:     filter,
				Sink:      publisher,
				Rates:     currency.NewNormalizer(cfg.CurrencyRates),
				Lookback:  since,
			})

			client := graph.NewTenantClient(ctx, tenant.TenantID, tenant.ClientID, tenant.ClientSecret, "")
			users, err := discovery.NewResolver(graph.DefaultBaseURL).Mailboxes(ctx, client, *tenant)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				return fmt.Errorf("no mailboxes to scan for tenant %q", tenantAlias)
			}

			result := runner.Scan(ctx, scanner.Mailbox{
				TenantAlias: tenant.Alias,
				Client:      client,
				Users:       users,
			})

			for _, ur := range result.UserResults {
				slog.Info("user result",
					"user", ur.UserID,
					"fetched", ur.Fetched,
					"detected", ur.Detected,
					"skipped", ur.Skipped,
					"errors", ur.Errors,
				)
			}

			if runAlerts {
				summary, err := runner.RunAlerts(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{"scan": result, "alerts": summary})
			}
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().String("tenant", "", "tenant alias to scan (required)")
	cmd.Flags().String("users", "", "comma-separated mailboxes (default: configured or discovered users)")
	cmd.Flags().Duration("since", 168*time.Hour, "lookback window")
	cmd.Flags().Bool("alerts", false, "run an alert pass after scanning")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func splitUsers(s string) []string {
	var users []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	return users
}
