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

// Package models defines the data structures shared across the backend.
package models

import (
	"strings"
	"time"
)

// Provider identifies an external mailbox provider.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderYahoo   Provider = "yahoo"
	ProviderOther   Provider = "other"
)

// AccountStatus is the lifecycle state of a connected account.
type AccountStatus string

const (
	StatusActive       AccountStatus = "active"
	StatusSyncing      AccountStatus = "syncing"
	StatusError        AccountStatus = "error"
	StatusDisconnected AccountStatus = "disconnected"
)

// Priority is the triage level of a message.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ValidPriority reports whether s is one of the known priority levels.
func ValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// User is an authenticated owner of accounts, messages, labels and
// preferences.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is one connected external mailbox, unique per
// (user, email address, provider). Token fields never leave the token
// manager boundary; they are excluded from all JSON output.
type Account struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	EmailAddress string        `json:"email_address"`
	Provider     Provider      `json:"provider"`
	Status       AccountStatus `json:"status"`
	IsPrimary    bool          `json:"is_primary"`
	SyncEnabled  bool          `json:"sync_enabled"`

	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`

	LastSync  *time.Time `json:"last_sync,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Syncable reports whether a sync pass may run for this account.
func (a *Account) Syncable() bool {
	return a.SyncEnabled && a.Status != StatusDisconnected
}

// Message is one email, either synced from a provider or authored locally.
// ExternalID is empty for locally authored (sent) messages.
type Message struct {
	ID         int64    `json:"id"`
	UserID     int64    `json:"user_id"`
	AccountID  *int64   `json:"account_id,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	Sender     string   `json:"sender"`
	Recipient  string   `json:"recipient"`
	CC         string   `json:"cc,omitempty"`
	BCC        string   `json:"bcc,omitempty"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Priority   Priority `json:"priority"`

	IsRead     bool `json:"is_read"`
	IsStarred  bool `json:"is_starred"`
	IsArchived bool `json:"is_archived"`
	IsTrashed  bool `json:"is_trashed"`
	IsSent     bool `json:"is_sent"`

	TrashedAt  *time.Time `json:"trashed_at,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Archive marks the message archived. Archived and trashed are mutually
// exclusive, so trash state is cleared.
func (m *Message) Archive() {
	m.IsArchived = true
	m.IsTrashed = false
	m.TrashedAt = nil
}

// Trash moves the message to trash, clearing archive state.
func (m *Message) Trash(now time.Time) {
	m.IsTrashed = true
	m.IsArchived = false
	m.TrashedAt = &now
}

// Restore clears both archive and trash state.
func (m *Message) Restore() {
	m.IsArchived = false
	m.IsTrashed = false
	m.TrashedAt = nil
}

// urgencyKeywords trigger high priority when found in subject or body.
var urgencyKeywords = []string{
	"urgent", "asap", "important", "critical", "emergency", "immediate",
}

// DetectPriority classifies a message by a case-insensitive keyword match
// against subject and body. A match yields high, otherwise normal.
func DetectPriority(subject, body string) Priority {
	haystack := strings.ToLower(subject) + "\n" + strings.ToLower(body)
	for _, kw := range urgencyKeywords {
		if strings.Contains(haystack, kw) {
			return PriorityHigh
		}
	}
	return PriorityNormal
}

// Label is a user-defined tag, unique per (name, user).
type Label struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageLabel joins messages and labels, unique per (message, label).
type MessageLabel struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	LabelID   int64     `json:"label_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DarkMode selects how the UI decides between light and dark themes.
type DarkMode string

const (
	DarkModeAuto   DarkMode = "auto"
	DarkModeManual DarkMode = "manual"
)

// Preference is the per-user UI and notification configuration, created
// lazily on first read.
type Preference struct {
	ID                   int64     `json:"id"`
	UserID               int64     `json:"user_id"`
	Timezone             string    `json:"timezone"`
	DarkModePreference   DarkMode  `json:"dark_mode_preference"`
	DarkModeEnabled      bool      `json:"dark_mode_enabled"`
	EmailNotifications   bool      `json:"email_notifications"`
	DesktopNotifications bool      `json:"desktop_notifications"`
	WeeklyDigest         bool      `json:"weekly_digest"`
	AutoArchiveRead      bool      `json:"auto_archive_read"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultPreference returns the preference row created on first read.
func DefaultPreference(userID int64) Preference {
	return Preference{
		UserID:             userID,
		Timezone:           "UTC",
		DarkModePreference: DarkModeAuto,
		EmailNotifications: true,
		WeeklyDigest:       true,
	}
}
