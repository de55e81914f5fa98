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

package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
	"github.com/mailfold/mailfold/internal/token"
)

// --- Mock account store ---

type mockAccounts struct {
	statuses    []models.AccountStatus
	finalStatus models.AccountStatus
	finalized   bool
}

func (m *mockAccounts) SetStatus(_ context.Context, _ int64, status models.AccountStatus) error {
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockAccounts) FinalizeSync(_ context.Context, _ int64, status models.AccountStatus, _ time.Time) error {
	m.finalized = true
	m.finalStatus = status
	return nil
}

// --- Mock message store ---

type mockMessages struct {
	existing map[string]bool
	inserted []*models.Message
}

func newMockMessages(existing ...string) *mockMessages {
	m := &mockMessages{existing: make(map[string]bool)}
	for _, id := range existing {
		m.existing[id] = true
	}
	return m
}

func (m *mockMessages) ExistsExternal(_ context.Context, _ int64, externalID string) (bool, error) {
	return m.existing[externalID], nil
}

func (m *mockMessages) Insert(_ context.Context, msg *models.Message) error {
	m.existing[msg.ExternalID] = true
	m.inserted = append(m.inserted, msg)
	return nil
}

// --- Mock token source ---

type mockTokens struct {
	calls     int
	refreshes int
	err       error
}

func (m *mockTokens) EnsureValid(context.Context, *models.Account) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "access-token", nil
}

func (m *mockTokens) Refresh(context.Context, *models.Account) (string, error) {
	m.refreshes++
	if m.err != nil {
		return "", m.err
	}
	return "refreshed-token", nil
}

// --- Mock locker ---

type mockLocker struct {
	held     bool
	acquired int
	released int
}

func (m *mockLocker) Acquire(context.Context, int64) (bool, error) {
	if m.held {
		return false, nil
	}
	m.acquired++
	return true, nil
}

func (m *mockLocker) Release(context.Context, int64) error {
	m.released++
	return nil
}

// --- Mock adapter ---

type fetchResult struct {
	messages []provider.RawMessage
	err      error
}

type mockAdapter struct {
	results []fetchResult
	calls   int
}

func (m *mockAdapter) Name() models.Provider                          { return models.ProviderGmail }
func (m *mockAdapter) AuthURL(string) (string, string, error)         { return "", "", nil }
func (m *mockAdapter) Exchange(context.Context, string, string) (*provider.TokenBundle, error) {
	return nil, nil
}
func (m *mockAdapter) Refresh(context.Context, string) (*provider.TokenBundle, error) {
	return nil, nil
}

func (m *mockAdapter) FetchMessages(context.Context, string, string, int) ([]provider.RawMessage, string, error) {
	i := m.calls
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	m.calls++
	r := m.results[i]
	return r.messages, "", r.err
}

// --- Helpers ---

func rawMessage(id, subject string) provider.RawMessage {
	return provider.RawMessage{
		ExternalID: id,
		Subject:    subject,
		Sender:     "sender@example.com",
		Recipient:  "me@example.com",
		Body:       "body of " + id,
		ReceivedAt: time.Now(),
	}
}

type fixture struct {
	syncer   *Syncer
	accounts *mockAccounts
	messages *mockMessages
	tokens   *mockTokens
	locker   *mockLocker
	adapter  *mockAdapter
}

func newFixture(adapter *mockAdapter, messages *mockMessages) *fixture {
	f := &fixture{
		accounts: &mockAccounts{},
		messages: messages,
		tokens:   &mockTokens{},
		locker:   &mockLocker{},
		adapter:  adapter,
	}
	f.syncer = New(Config{
		Accounts: f.accounts,
		Messages: f.messages,
		Tokens:   f.tokens,
		Registry: provider.Registry{models.ProviderGmail: adapter},
		Locker:   f.locker,
		PageSize: 50,
	})
	// No real sleeping in tests.
	f.syncer.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func syncableAccount() *models.Account {
	return &models.Account{
		ID:          3,
		UserID:      11,
		Provider:    models.ProviderGmail,
		Status:      models.StatusActive,
		SyncEnabled: true,
	}
}

// --- Tests ---

func TestSyncAccount_StoresNewMessages(t *testing.T) {
	adapter := &mockAdapter{results: []fetchResult{
		{messages: []provider.RawMessage{rawMessage("x1", "URGENT: act now"), rawMessage("x2", "hello")}},
	}}
	f := newFixture(adapter, newMockMessages())

	result, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if result.Created != 2 || result.Seen != 0 {
		t.Errorf("result = %+v, want 2 created", result)
	}

	if f.messages.inserted[0].Priority != models.PriorityHigh {
		t.Errorf("urgent message priority = %q, want high", f.messages.inserted[0].Priority)
	}
	if f.messages.inserted[1].Priority != models.PriorityNormal {
		t.Errorf("plain message priority = %q, want normal", f.messages.inserted[1].Priority)
	}

	if len(f.accounts.statuses) != 1 || f.accounts.statuses[0] != models.StatusSyncing {
		t.Errorf("statuses = %v, want one syncing transition", f.accounts.statuses)
	}
	if !f.accounts.finalized || f.accounts.finalStatus != models.StatusActive {
		t.Errorf("finalized=%v status=%q, want active", f.accounts.finalized, f.accounts.finalStatus)
	}
	if f.locker.released != 1 {
		t.Errorf("lock released %d times, want 1", f.locker.released)
	}
}

func TestSyncAccount_SkipsSeenMessages(t *testing.T) {
	adapter := &mockAdapter{results: []fetchResult{
		{messages: []provider.RawMessage{rawMessage("x1", "a"), rawMessage("x2", "b")}},
	}}
	f := newFixture(adapter, newMockMessages("x1", "x2"))

	result, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if result.Created != 0 || result.Seen != 2 {
		t.Errorf("result = %+v, want 2 seen", result)
	}
	if len(f.messages.inserted) != 0 {
		t.Errorf("inserted %d messages, want 0", len(f.messages.inserted))
	}
}

func TestSyncAccount_NotSyncable(t *testing.T) {
	f := newFixture(&mockAdapter{results: []fetchResult{{}}}, newMockMessages())

	account := syncableAccount()
	account.SyncEnabled = false

	_, err := f.syncer.SyncAccount(context.Background(), account)
	if !errors.Is(err, ErrAccountNotSyncable) {
		t.Fatalf("err = %v, want ErrAccountNotSyncable", err)
	}
	if f.locker.acquired != 0 {
		t.Error("lock acquired for non-syncable account")
	}
}

func TestSyncAccount_LockHeld(t *testing.T) {
	f := newFixture(&mockAdapter{results: []fetchResult{{}}}, newMockMessages())
	f.locker.held = true

	_, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("err = %v, want ErrSyncInProgress", err)
	}
	if f.tokens.calls != 0 {
		t.Error("token requested despite held lock")
	}
}

func TestSyncAccount_TokenFailureShortCircuits(t *testing.T) {
	adapter := &mockAdapter{results: []fetchResult{{}}}
	f := newFixture(adapter, newMockMessages())
	f.tokens.err = &provider.Error{Kind: provider.KindRefresh, Op: "token.refresh", Msg: "refresh token rejected"}

	_, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if provider.KindOf(err) != provider.KindRefresh {
		t.Fatalf("kind = %v, want refresh", provider.KindOf(err))
	}
	if adapter.calls != 0 {
		t.Error("fetch attempted despite token failure")
	}
	if !f.accounts.finalized || f.accounts.finalStatus != models.StatusError {
		t.Errorf("finalized=%v status=%q, want error status stamped", f.accounts.finalized, f.accounts.finalStatus)
	}
}

func TestSyncAccount_RetriesTransientFetch(t *testing.T) {
	transient := &provider.Error{Kind: provider.KindFetch, Op: "gmail.fetch", Msg: "transient", Temporary: true}
	adapter := &mockAdapter{results: []fetchResult{
		{err: transient},
		{err: transient},
		{messages: []provider.RawMessage{rawMessage("x1", "late but fine")}},
	}}
	f := newFixture(adapter, newMockMessages())

	result, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if adapter.calls != 3 {
		t.Errorf("fetch attempts = %d, want 3", adapter.calls)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
}

func TestSyncAccount_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := &provider.Error{Kind: provider.KindFetch, Op: "gmail.fetch", Msg: "transient", Temporary: true}
	adapter := &mockAdapter{results: []fetchResult{{err: transient}}}
	f := newFixture(adapter, newMockMessages())

	_, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err == nil {
		t.Fatal("expected error")
	}
	if adapter.calls != maxFetchAttempts {
		t.Errorf("fetch attempts = %d, want %d", adapter.calls, maxFetchAttempts)
	}
	if f.accounts.finalStatus != models.StatusError {
		t.Errorf("final status = %q, want error", f.accounts.finalStatus)
	}
}

func TestSyncAccount_AuthFailureRefreshesOnce(t *testing.T) {
	rejected := &provider.Error{Kind: provider.KindAuth, Op: "gmail.fetch", Msg: "access token rejected"}
	adapter := &mockAdapter{results: []fetchResult{
		{err: rejected},
		{messages: []provider.RawMessage{rawMessage("x1", "after refresh")}},
	}}
	f := newFixture(adapter, newMockMessages())

	result, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	// One token for the pass plus one forced refresh after the rejection.
	if f.tokens.calls != 1 {
		t.Errorf("EnsureValid calls = %d, want 1", f.tokens.calls)
	}
	if f.tokens.refreshes != 1 {
		t.Errorf("Refresh calls = %d, want 1", f.tokens.refreshes)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
}

func TestSyncAccount_SecondAuthFailureIsTerminal(t *testing.T) {
	rejected := &provider.Error{Kind: provider.KindAuth, Op: "gmail.fetch", Msg: "access token rejected"}
	adapter := &mockAdapter{results: []fetchResult{{err: rejected}}}
	f := newFixture(adapter, newMockMessages())

	_, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.KindOf(err) != provider.KindAuth {
		t.Errorf("kind = %v, want auth", provider.KindOf(err))
	}
	// Refreshed once, then the repeated rejection ends the pass.
	if f.tokens.refreshes != 1 {
		t.Errorf("Refresh calls = %d, want 1", f.tokens.refreshes)
	}
}

func TestSyncAccount_AuthRetrySkipsBackoff(t *testing.T) {
	rejected := &provider.Error{Kind: provider.KindAuth, Op: "gmail.fetch", Msg: "access token rejected"}
	adapter := &mockAdapter{results: []fetchResult{
		{err: rejected},
		{messages: []provider.RawMessage{rawMessage("x1", "after refresh")}},
	}}
	f := newFixture(adapter, newMockMessages())

	var sleeps int
	f.syncer.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	if _, err := f.syncer.SyncAccount(context.Background(), syncableAccount()); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	// The rejection is not a load problem, so the retry must not wait.
	if sleeps != 0 {
		t.Errorf("backoff sleeps = %d, want 0", sleeps)
	}
}

func TestSyncAccount_MissingDateStoredAsNull(t *testing.T) {
	undated := rawMessage("x1", "no date header")
	undated.ReceivedAt = time.Time{}
	adapter := &mockAdapter{results: []fetchResult{
		{messages: []provider.RawMessage{undated}},
	}}
	f := newFixture(adapter, newMockMessages())

	result, err := f.syncer.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("created = %d, want 1", result.Created)
	}
	if got := f.messages.inserted[0].ReceivedAt; got != nil {
		t.Errorf("ReceivedAt = %v, want nil", *got)
	}
}

// --- Composition with the real token manager ---

// credStub backs a token.Manager with in-memory credentials.
type credStub struct {
	access    string
	refresh   string
	expiresAt time.Time
	revoked   bool
}

func (c *credStub) Credentials(context.Context, int64) (string, string, *time.Time, error) {
	exp := c.expiresAt
	return c.access, c.refresh, &exp, nil
}

func (c *credStub) SaveToken(_ context.Context, _ int64, access string, expiry time.Time) error {
	c.access = access
	c.expiresAt = expiry
	return nil
}

func (c *credStub) MarkRevoked(context.Context, int64) error {
	c.revoked = true
	return nil
}

// strictAdapter rejects every access token except the one its own
// Refresh hands out.
type strictAdapter struct {
	valid        string
	messages     []provider.RawMessage
	refreshCalls int
	fetchCalls   int
}

func (a *strictAdapter) Name() models.Provider                  { return models.ProviderGmail }
func (a *strictAdapter) AuthURL(string) (string, string, error) { return "", "", nil }
func (a *strictAdapter) Exchange(context.Context, string, string) (*provider.TokenBundle, error) {
	return nil, nil
}

func (a *strictAdapter) Refresh(context.Context, string) (*provider.TokenBundle, error) {
	a.refreshCalls++
	return &provider.TokenBundle{AccessToken: a.valid, Expiry: time.Now().Add(time.Hour)}, nil
}

func (a *strictAdapter) FetchMessages(_ context.Context, access, _ string, _ int) ([]provider.RawMessage, string, error) {
	a.fetchCalls++
	if access != a.valid {
		return nil, "", &provider.Error{Kind: provider.KindAuth, Op: "gmail.fetch", Msg: "access token rejected (HTTP 401)"}
	}
	return a.messages, "", nil
}

// A provider can revoke an access token ahead of the expiry on file.
// The stored token looks fresh, the first fetch 401s, and the pass must
// still succeed after exactly one upstream refresh.
func TestSyncAccount_RevokedEarlyTokenRecovers(t *testing.T) {
	adapter := &strictAdapter{
		valid:    "fresh-token",
		messages: []provider.RawMessage{rawMessage("x1", "after forced refresh")},
	}
	creds := &credStub{
		access:    "stale-token",
		refresh:   "refresh-token",
		expiresAt: time.Now().Add(time.Hour),
	}
	registry := provider.Registry{models.ProviderGmail: adapter}

	accounts := &mockAccounts{}
	messages := newMockMessages()
	s := New(Config{
		Accounts: accounts,
		Messages: messages,
		Tokens:   token.NewManager(creds, registry),
		Registry: registry,
		Locker:   &mockLocker{},
		PageSize: 50,
	})
	s.sleep = func(context.Context, time.Duration) error { return nil }

	result, err := s.SyncAccount(context.Background(), syncableAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if adapter.refreshCalls != 1 {
		t.Errorf("upstream refresh calls = %d, want 1", adapter.refreshCalls)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
	if creds.access != "fresh-token" {
		t.Error("refreshed access token not persisted")
	}
	if creds.revoked {
		t.Error("account revoked on a recoverable rejection")
	}
	if accounts.finalStatus != models.StatusActive {
		t.Errorf("final status = %q, want active", accounts.finalStatus)
	}
}
