// Copyright (c) 2026 Mailfold Authors
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

// Mailfold — Background Sync Daemon
//
// Sweeps every sync-enabled account and runs one sync pass per account.
// Runs forever on an interval by default; -once performs a single sweep
// and exits, which suits cron-style deployments.
//
// Usage:
//
//	go run ./cmd/syncd/ [-once] [-interval 5m]
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailfold/mailfold/internal/config"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
	"github.com/mailfold/mailfold/internal/provider/gmail"
	"github.com/mailfold/mailfold/internal/provider/outlook"
	"github.com/mailfold/mailfold/internal/store"
	"github.com/mailfold/mailfold/internal/syncer"
	"github.com/mailfold/mailfold/internal/synclock"
	"github.com/mailfold/mailfold/internal/token"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	onceFlag := flag.Bool("once", false, "Run a single sweep and exit")
	intervalFlag := flag.Duration("interval", 0, "Sweep interval (default: SWEEP_INTERVAL from config)")
	flag.Parse()

	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	interval := cfg.SweepInterval
	if *intervalFlag > 0 {
		interval = *intervalFlag
	}

	slog.Info("starting sync daemon",
		"once", *onceFlag,
		"interval", interval,
		"providers", len(cfg.Providers),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Provider Registry + Sync Engine ---
	remoteClient := &http.Client{Timeout: cfg.RemoteTimeout}
	registry := provider.Registry{}
	for name, pc := range cfg.Providers {
		switch models.Provider(name) {
		case models.ProviderGmail:
			registry[models.ProviderGmail] = gmail.New(pc.ClientID, pc.ClientSecret, remoteClient)
		case models.ProviderOutlook:
			registry[models.ProviderOutlook] = outlook.New(pc.ClientID, pc.ClientSecret, remoteClient)
		}
	}

	sync := syncer.New(syncer.Config{
		Accounts: st.Accounts,
		Messages: st.Messages,
		Tokens:   token.NewManager(st.Accounts, registry),
		Registry: registry,
		Locker:   synclock.New(rdb, cfg.SyncLockTTL),
		PageSize: cfg.SyncPageSize,
	})

	// --- Sweep Loop ---
	sweep(ctx, st, sync)
	if *onceFlag {
		slog.Info("sync daemon done")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sync daemon stopped")
			return
		case <-ticker.C:
			sweep(ctx, st, sync)
		}
	}
}

// sweep runs one sync pass per sync-enabled account. Accounts locked by
// another pass are skipped quietly.
func sweep(ctx context.Context, st *store.Store, sync *syncer.Syncer) {
	accounts, err := st.Accounts.ListSyncEnabled(ctx)
	if err != nil {
		slog.Error("list sync-enabled accounts", "error", err)
		return
	}

	start := time.Now()
	var created, failed int
	for i := range accounts {
		if ctx.Err() != nil {
			return
		}

		result, err := sync.SyncAccount(ctx, &accounts[i])
		if err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				continue
			}
			failed++
			slog.Warn("sweep: sync failed",
				"account_id", accounts[i].ID,
				"provider", accounts[i].Provider,
				"kind", provider.KindOf(err),
			)
			continue
		}
		created += result.Created
	}

	slog.Info("sweep complete",
		"accounts", len(accounts),
		"created", created,
		"failed", failed,
		"elapsed", time.Since(start),
	)
}
