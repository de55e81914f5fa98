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

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailfold/mailfold/internal/models"
)

// AccountStore provides CRUD operations for connected mailbox accounts.
// Token columns are written here but read only through Credentials, which
// is reserved for the token lifecycle manager.
type AccountStore struct {
	pool *pgxpool.Pool
}

const accountColumns = `
	id, user_id, email_address, provider, status, is_primary, sync_enabled,
	token_expires_at, last_sync, created_at, updated_at`

// UpsertConnected records a successful OAuth code exchange, keyed on
// (user, email address, provider). Reconnecting an existing account
// replaces its tokens in place and resets it to active.
func (s *AccountStore) UpsertConnected(ctx context.Context, userID int64, email string, p models.Provider, access, refresh string, expiry time.Time) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts
			(user_id, email_address, provider, status, sync_enabled,
			 access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, 'active', TRUE, $4, $5, $6)
		ON CONFLICT (user_id, email_address, provider) DO UPDATE SET
			status           = 'active',
			sync_enabled     = TRUE,
			access_token     = EXCLUDED.access_token,
			refresh_token    = CASE WHEN EXCLUDED.refresh_token <> ''
			                        THEN EXCLUDED.refresh_token
			                        ELSE accounts.refresh_token END,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at       = NOW()
		RETURNING `+accountColumns,
		userID, email, p, access, refresh, nullableTime(expiry))
	return scanAccount(row)
}

// Get retrieves one account owned by the given user.
func (s *AccountStore) Get(ctx context.Context, userID, accountID int64) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	return scanAccount(row)
}

// List returns all of a user's accounts, primary first.
func (s *AccountStore) List(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListSyncEnabled returns every account eligible for a sync sweep, across
// all users. The sync engine acts on each owner's behalf.
func (s *AccountStore) ListSyncEnabled(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE sync_enabled = TRUE AND status <> 'disconnected'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// Credentials returns the stored token fields for one account. Reserved
// for the token lifecycle manager; nothing else reads token columns.
func (s *AccountStore) Credentials(ctx context.Context, accountID int64) (access, refresh string, expiresAt *time.Time, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_expires_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&access, &refresh, &expiresAt)
	if err == pgx.ErrNoRows {
		return "", "", nil, fmt.Errorf("account %d not found", accountID)
	}
	return access, refresh, expiresAt, err
}

// SaveToken persists a refreshed access token and its expiry, returning
// the account to active.
func (s *AccountStore) SaveToken(ctx context.Context, accountID int64, access string, expiry time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET access_token = $1, token_expires_at = $2, status = 'active', updated_at = NOW()
		WHERE id = $3
	`, access, nullableTime(expiry), accountID)
	return err
}

// MarkRevoked records a terminal refresh failure: the account needs a
// fresh OAuth flow before it can sync again.
func (s *AccountStore) MarkRevoked(ctx context.Context, accountID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET status = 'error', sync_enabled = FALSE, access_token = '', updated_at = NOW()
		WHERE id = $1
	`, accountID)
	return err
}

// SetStatus updates only the lifecycle status.
func (s *AccountStore) SetStatus(ctx context.Context, accountID int64, status models.AccountStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, accountID)
	return err
}

// FinalizeSync stamps the end of a sync pass. Called on success and
// failure alike so last_sync always reflects the most recent attempt.
func (s *AccountStore) FinalizeSync(ctx context.Context, accountID int64, status models.AccountStatus, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET status = $1, last_sync = $2, updated_at = NOW()
		WHERE id = $3
	`, status, at, accountID)
	return err
}

// SetPrimary marks one account primary and clears the flag everywhere
// else, keeping at most one primary per user.
func (s *AccountStore) SetPrimary(ctx context.Context, userID, accountID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET is_primary = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_primary
	`, userID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET is_primary = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}

	return tx.Commit(ctx)
}

// Disconnect soft-disables an account: sync stops, tokens are dropped,
// historical messages are retained.
func (s *AccountStore) Disconnect(ctx context.Context, userID, accountID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET status = 'disconnected', sync_enabled = FALSE,
		    access_token = '', refresh_token = '', token_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.EmailAddress, &a.Provider, &a.Status,
		&a.IsPrimary, &a.SyncEnabled, &a.TokenExpiresAt, &a.LastSync,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// collectAccounts scans multiple rows into a slice of Accounts.
func collectAccounts(rows pgx.Rows) ([]models.Account, error) {
	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.EmailAddress, &a.Provider, &a.Status,
			&a.IsPrimary, &a.SyncEnabled, &a.TokenExpiresAt, &a.LastSync,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
