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

// Package provider defines the uniform capability surface over
// provider-specific OAuth2 and mailbox-listing APIs. Each concrete
// adapter (gmail, outlook) implements the same contract with different
// wire formats.
package provider

import (
	"context"
	"time"

	"github.com/mailfold/mailfold/internal/models"
)

// TokenBundle is the result of a code exchange or token refresh.
// Refresh and Email are only populated by Exchange.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Email        string
}

// RawMessage is a provider-native message normalized to the common shape
// before storage. Missing body parts resolve to an empty string.
type RawMessage struct {
	ExternalID string
	Subject    string
	Sender     string
	Recipient  string
	CC         string
	Body       string
	ReceivedAt time.Time
	IsRead     bool
	IsStarred  bool
}

// Adapter is the per-provider capability set. Implementations must not
// leak partial credentials on failure and must classify errors with the
// kinds defined in errors.go.
type Adapter interface {
	// Name returns the provider this adapter serves.
	Name() models.Provider

	// AuthURL builds the provider consent URL and an opaque state nonce.
	// Returns a config-kind error if client credentials are unset.
	AuthURL(redirectURI string) (authURL, state string, err error)

	// Exchange trades an authorization code for tokens plus the address
	// of the mailbox that granted consent.
	Exchange(ctx context.Context, code, redirectURI string) (*TokenBundle, error)

	// Refresh obtains a new access token. A refresh-kind error means the
	// refresh token itself is invalid or revoked, which is terminal for
	// the account.
	Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error)

	// FetchMessages lists one page of messages. An empty cursor starts
	// from the newest messages; the returned cursor is empty when no
	// further page exists.
	FetchMessages(ctx context.Context, accessToken, cursor string, pageSize int) ([]RawMessage, string, error)
}

// Registry resolves the adapter for a given provider.
type Registry map[models.Provider]Adapter

// For returns the adapter for p, or a config-kind error when the
// provider is unknown or not configured.
func (r Registry) For(p models.Provider) (Adapter, error) {
	if a, ok := r[p]; ok {
		return a, nil
	}
	return nil, &Error{Kind: KindConfig, Op: "registry", Msg: "provider " + string(p) + " is not configured"}
}
