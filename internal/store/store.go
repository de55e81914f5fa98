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

// Package store provides the Postgres-backed persistence layer. Every
// read and write path is scoped by the requesting user id; no cross-user
// visibility exists at any level, administrative callers included.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the per-entity stores over one Postgres pool.
type Store struct {
	pool *pgxpool.Pool

	Users       *UserStore
	Accounts    *AccountStore
	Messages    *MessageStore
	Labels      *LabelStore
	Preferences *PreferenceStore
}

// New creates the store and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{
		pool:        pool,
		Users:       &UserStore{pool: pool},
		Accounts:    &AccountStore{pool: pool},
		Messages:    &MessageStore{pool: pool},
		Labels:      &LabelStore{pool: pool},
		Preferences: &PreferenceStore{pool: pool},
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id               BIGSERIAL PRIMARY KEY,
			user_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			email_address    TEXT NOT NULL,
			provider         TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'active',
			is_primary       BOOLEAN NOT NULL DEFAULT FALSE,
			sync_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
			access_token     TEXT NOT NULL DEFAULT '',
			refresh_token    TEXT NOT NULL DEFAULT '',
			token_expires_at TIMESTAMPTZ,
			last_sync        TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, email_address, provider)
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			account_id  BIGINT REFERENCES accounts(id) ON DELETE SET NULL,
			external_id TEXT,
			sender      TEXT NOT NULL DEFAULT '',
			recipient   TEXT NOT NULL DEFAULT '',
			cc          TEXT NOT NULL DEFAULT '',
			bcc         TEXT NOT NULL DEFAULT '',
			subject     TEXT NOT NULL DEFAULT '',
			body        TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'normal',
			is_read     BOOLEAN NOT NULL DEFAULT FALSE,
			is_starred  BOOLEAN NOT NULL DEFAULT FALSE,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			is_trashed  BOOLEAN NOT NULL DEFAULT FALSE,
			is_sent     BOOLEAN NOT NULL DEFAULT FALSE,
			trashed_at  TIMESTAMPTZ,
			received_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external
			ON messages(user_id, external_id) WHERE external_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_user_read ON messages(user_id, is_read);
		CREATE INDEX IF NOT EXISTS idx_messages_user_priority ON messages(user_id, priority);
		CREATE INDEX IF NOT EXISTS idx_messages_user_trashed ON messages(user_id, is_trashed);

		CREATE TABLE IF NOT EXISTS labels (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			color      TEXT NOT NULL DEFAULT '#3b82f6',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, name)
		);

		CREATE TABLE IF NOT EXISTS message_labels (
			id         BIGSERIAL PRIMARY KEY,
			message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			label_id   BIGINT NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(message_id, label_id)
		);

		CREATE TABLE IF NOT EXISTS preferences (
			id                    BIGSERIAL PRIMARY KEY,
			user_id               BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			timezone              TEXT NOT NULL DEFAULT 'UTC',
			dark_mode_preference  TEXT NOT NULL DEFAULT 'auto',
			dark_mode_enabled     BOOLEAN NOT NULL DEFAULT FALSE,
			email_notifications   BOOLEAN NOT NULL DEFAULT TRUE,
			desktop_notifications BOOLEAN NOT NULL DEFAULT FALSE,
			weekly_digest         BOOLEAN NOT NULL DEFAULT TRUE,
			auto_archive_read     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
