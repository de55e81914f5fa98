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

// Package syncer pulls one page of messages per pass from a connected
// account's provider and stores the ones not seen before. Passes are
// serialized per account through a Redis lock, so the API-triggered sync
// and the background sweeper never overlap on one account.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
)

const (
	// maxFetchAttempts bounds retries of one page fetch on transient
	// provider failures.
	maxFetchAttempts = 3

	// retryBaseDelay is the first backoff step; it doubles per attempt.
	retryBaseDelay = 500 * time.Millisecond
)

// ErrSyncInProgress is returned when another sync pass holds the
// account's lock.
var ErrSyncInProgress = errors.New("sync already in progress for this account")

// ErrAccountNotSyncable is returned for disconnected accounts and
// accounts with sync disabled.
var ErrAccountNotSyncable = errors.New("account is not eligible for sync")

// AccountStore is the slice of the account store the syncer needs.
type AccountStore interface {
	SetStatus(ctx context.Context, accountID int64, status models.AccountStatus) error
	FinalizeSync(ctx context.Context, accountID int64, status models.AccountStatus, at time.Time) error
}

// MessageStore is the slice of the message store the syncer needs.
type MessageStore interface {
	ExistsExternal(ctx context.Context, userID int64, externalID string) (bool, error)
	Insert(ctx context.Context, m *models.Message) error
}

// TokenSource hands out a valid access token for an account. Refresh
// obtains a new token even when the stored expiry still looks valid;
// the syncer needs that after the provider rejects a token mid-fetch.
type TokenSource interface {
	EnsureValid(ctx context.Context, account *models.Account) (string, error)
	Refresh(ctx context.Context, account *models.Account) (string, error)
}

// Locker serializes sync passes per account.
type Locker interface {
	Acquire(ctx context.Context, accountID int64) (bool, error)
	Release(ctx context.Context, accountID int64) error
}

// Result summarizes one sync pass.
type Result struct {
	Created int `json:"created"`
	Seen    int `json:"seen"`
}

// Syncer runs sync passes against the provider registry.
type Syncer struct {
	accounts AccountStore
	messages MessageStore
	tokens   TokenSource
	registry provider.Registry
	locker   Locker

	pageSize int
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Config holds the syncer's collaborators.
type Config struct {
	Accounts AccountStore
	Messages MessageStore
	Tokens   TokenSource
	Registry provider.Registry
	Locker   Locker
	PageSize int
}

// New creates a syncer. A non-positive page size falls back to 50.
func New(cfg Config) *Syncer {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Syncer{
		accounts: cfg.Accounts,
		messages: cfg.Messages,
		tokens:   cfg.Tokens,
		registry: cfg.Registry,
		locker:   cfg.Locker,
		pageSize: pageSize,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// SyncAccount runs one sync pass: acquire the account lock, obtain a
// valid token, fetch one page, store unseen messages, finalize. last_sync
// is stamped whether the pass succeeds or fails, so it always reflects
// the most recent attempt.
func (s *Syncer) SyncAccount(ctx context.Context, account *models.Account) (*Result, error) {
	if !account.Syncable() {
		return nil, ErrAccountNotSyncable
	}

	ok, err := s.locker.Acquire(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), account.ID); err != nil {
			slog.Warn("release sync lock", "account_id", account.ID, "error", err)
		}
	}()

	if err := s.accounts.SetStatus(ctx, account.ID, models.StatusSyncing); err != nil {
		return nil, err
	}

	result, syncErr := s.runPass(ctx, account)

	finalStatus := models.StatusActive
	if syncErr != nil {
		finalStatus = models.StatusError
	}
	if err := s.accounts.FinalizeSync(context.WithoutCancel(ctx), account.ID, finalStatus, s.now()); err != nil {
		slog.Error("finalize sync", "account_id", account.ID, "error", err)
	}

	if syncErr != nil {
		slog.Warn("sync pass failed",
			"account_id", account.ID,
			"provider", account.Provider,
			"kind", provider.KindOf(syncErr))
		return nil, syncErr
	}

	slog.Info("sync pass complete",
		"account_id", account.ID,
		"provider", account.Provider,
		"created", result.Created,
		"seen", result.Seen)
	return result, nil
}

func (s *Syncer) runPass(ctx context.Context, account *models.Account) (*Result, error) {
	adapter, err := s.registry.For(account.Provider)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.EnsureValid(ctx, account)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetchPage(ctx, adapter, account, access)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for i := range raw {
		m := &raw[i]
		exists, err := s.messages.ExistsExternal(ctx, account.UserID, m.ExternalID)
		if err != nil {
			return result, err
		}
		if exists {
			result.Seen++
			continue
		}

		// An unparseable date comes through as the zero time; store
		// NULL rather than year 1.
		var receivedAt *time.Time
		if !m.ReceivedAt.IsZero() {
			t := m.ReceivedAt
			receivedAt = &t
		}
		msg := &models.Message{
			UserID:     account.UserID,
			AccountID:  &account.ID,
			ExternalID: m.ExternalID,
			Sender:     m.Sender,
			Recipient:  m.Recipient,
			CC:         m.CC,
			Subject:    m.Subject,
			Body:       m.Body,
			Priority:   models.DetectPriority(m.Subject, m.Body),
			IsRead:     m.IsRead,
			IsStarred:  m.IsStarred,
			ReceivedAt: receivedAt,
		}
		if err := s.messages.Insert(ctx, msg); err != nil {
			return result, err
		}
		result.Created++
	}

	return result, nil
}

// fetchPage fetches one page with bounded retries. Transient fetch
// failures back off and retry; a rejected access token triggers one
// forced refresh-and-retry before giving up. The token retry skips the
// backoff because the rejection is not a load problem.
func (s *Syncer) fetchPage(ctx context.Context, adapter provider.Adapter, account *models.Account, access string) ([]provider.RawMessage, error) {
	var lastErr error
	refreshed := false
	skipDelay := false

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 && !skipDelay {
			delay := retryBaseDelay << (attempt - 1)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		skipDelay = false

		raw, _, err := adapter.FetchMessages(ctx, access, "", s.pageSize)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if provider.KindOf(err) == provider.KindAuth && !refreshed {
			refreshed = true
			skipDelay = true
			access, err = s.tokens.Refresh(ctx, account)
			if err != nil {
				return nil, err
			}
			continue
		}

		if !provider.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
