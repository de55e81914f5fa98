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

// Package token owns the access-token lifecycle for connected accounts.
// All token reads and refreshes funnel through the Manager; nothing else
// touches stored credentials.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
)

// refreshMargin is how far before expiry a token counts as expired.
// Wide enough to cover clock skew and the request itself.
const refreshMargin = 60 * time.Second

// CredentialStore is the slice of the account store the manager needs.
type CredentialStore interface {
	Credentials(ctx context.Context, accountID int64) (access, refresh string, expiresAt *time.Time, err error)
	SaveToken(ctx context.Context, accountID int64, access string, expiry time.Time) error
	MarkRevoked(ctx context.Context, accountID int64) error
}

// Manager hands out valid access tokens, refreshing them on demand.
// Concurrent requests for the same account share one refresh.
type Manager struct {
	store    CredentialStore
	registry provider.Registry
	group    singleflight.Group
	now      func() time.Time
}

// NewManager creates a token manager over the given credential store and
// provider registry.
func NewManager(store CredentialStore, registry provider.Registry) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		now:      time.Now,
	}
}

// EnsureValid returns an access token guaranteed to be valid for at
// least the refresh margin. An expired or near-expiry token is refreshed
// and persisted before return. A refresh failure of any kind marks the
// account revoked; the caller must not retry until the user reconnects.
func (m *Manager) EnsureValid(ctx context.Context, account *models.Account) (string, error) {
	access, _, expiresAt, err := m.store.Credentials(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}

	if access != "" && expiresAt != nil && m.now().Add(refreshMargin).Before(*expiresAt) {
		return access, nil
	}

	return m.Refresh(ctx, account)
}

// Refresh discards the stored access token and obtains a new one,
// regardless of what the recorded expiry claims. Providers revoke access
// tokens ahead of their expiry, so a fetch-time rejection must bypass
// the freshness check. Concurrent callers still share one upstream
// refresh, and failure still revokes the account.
func (m *Manager) Refresh(ctx context.Context, account *models.Account) (string, error) {
	_, refresh, _, err := m.store.Credentials(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}

	if refresh == "" {
		if err := m.store.MarkRevoked(ctx, account.ID); err != nil {
			slog.Error("mark account revoked", "account_id", account.ID, "error", err)
		}
		return "", &provider.Error{Kind: provider.KindRefresh, Op: "token.refresh", Msg: "no refresh token on file"}
	}

	key := strconv.FormatInt(account.ID, 10)
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		return m.refresh(ctx, account, refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, account *models.Account, refreshToken string) (string, error) {
	adapter, err := m.registry.For(account.Provider)
	if err != nil {
		return "", err
	}

	bundle, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		if markErr := m.store.MarkRevoked(ctx, account.ID); markErr != nil {
			slog.Error("mark account revoked", "account_id", account.ID, "error", markErr)
		}
		slog.Warn("token refresh failed",
			"account_id", account.ID,
			"provider", account.Provider,
			"kind", provider.KindOf(err))
		return "", err
	}

	if err := m.store.SaveToken(ctx, account.ID, bundle.AccessToken, bundle.Expiry); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	slog.Info("access token refreshed",
		"account_id", account.ID,
		"provider", account.Provider,
		"expires_at", bundle.Expiry)
	return bundle.AccessToken, nil
}
