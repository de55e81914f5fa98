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

// Mailfold — API Server
//
// Entry point for the mailfold backend. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Builds the provider registry from configured OAuth credentials
//  4. Wires the token manager, sync engine and AI service
//  5. Serves the REST API
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailfold/mailfold/internal/ai"
	"github.com/mailfold/mailfold/internal/api"
	"github.com/mailfold/mailfold/internal/auth"
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

	slog.Info("starting mailfold api server")

	// Optional .env for local development
	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"providers", len(cfg.Providers),
		"sync_page_size", cfg.SyncPageSize,
		"sweep_interval", cfg.SweepInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Provider Registry ---
	remoteClient := &http.Client{Timeout: cfg.RemoteTimeout}
	registry := buildRegistry(cfg, remoteClient)
	if len(registry) == 0 {
		slog.Warn("no mail providers configured, OAuth endpoints will reject all requests")
	}

	// --- Token Manager, Sync Lock, Sync Engine ---
	tokens := token.NewManager(st.Accounts, registry)
	locker := synclock.New(rdb, cfg.SyncLockTTL)
	sync := syncer.New(syncer.Config{
		Accounts: st.Accounts,
		Messages: st.Messages,
		Tokens:   tokens,
		Registry: registry,
		Locker:   locker,
		PageSize: cfg.SyncPageSize,
	})

	// --- AI Service ---
	gemini := ai.NewGeminiClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL, remoteClient)
	aiSvc := ai.NewService(gemini)

	// --- API Server ---
	issuer := auth.NewIssuer(cfg.JWTSecret)
	srv := api.New(api.Config{
		Store:           st,
		Registry:        registry,
		Syncer:          sync,
		AI:              aiSvc,
		Issuer:          issuer,
		Redis:           rdb,
		RedirectBaseURL: cfg.RedirectBaseURL,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("api server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("api server stopped")
}

// buildRegistry creates one adapter per provider with credentials.
func buildRegistry(cfg *config.Config, httpClient *http.Client) provider.Registry {
	registry := provider.Registry{}
	for name, pc := range cfg.Providers {
		switch models.Provider(name) {
		case models.ProviderGmail:
			registry[models.ProviderGmail] = gmail.New(pc.ClientID, pc.ClientSecret, httpClient)
		case models.ProviderOutlook:
			registry[models.ProviderOutlook] = outlook.New(pc.ClientID, pc.ClientSecret, httpClient)
		default:
			slog.Warn("ignoring unsupported provider in config", "provider", name)
		}
	}
	return registry
}
