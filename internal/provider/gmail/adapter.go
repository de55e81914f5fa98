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

// Package gmail implements the provider contract against the Gmail REST
// API and Google's OAuth2 endpoints.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
)

const (
	defaultAPIBaseURL = "https://gmail.googleapis.com/gmail/v1"
	defaultAuthURL    = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
)

var scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
}

// Adapter talks to the Gmail API for one configured OAuth client.
type Adapter struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	// Overridable for tests.
	apiBaseURL string
	authURL    string
	tokenURL   string
}

// Option adjusts adapter construction.
type Option func(*Adapter)

// WithBaseURLs points the adapter at alternate API and OAuth endpoints.
func WithBaseURLs(api, auth, token string) Option {
	return func(a *Adapter) {
		a.apiBaseURL = api
		a.authURL = auth
		a.tokenURL = token
	}
}

// New creates a Gmail adapter. httpClient bounds every remote call; pass
// one with a timeout set.
func New(clientID, clientSecret string, httpClient *http.Client, opts ...Option) *Adapter {
	a := &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		apiBaseURL:   defaultAPIBaseURL,
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() models.Provider { return models.ProviderGmail }

func (a *Adapter) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.authURL,
			TokenURL: a.tokenURL,
		},
	}
}

// AuthURL builds the Google consent URL.
func (a *Adapter) AuthURL(redirectURI string) (string, string, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return "", "", &provider.Error{Kind: provider.KindConfig, Op: "gmail.authorize", Msg: "client credentials are not configured"}
	}

	state := uuid.NewString()
	authURL := a.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return authURL, state, nil
}

// Exchange trades an authorization code for tokens and resolves the
// mailbox address via the Gmail profile endpoint.
func (a *Adapter) Exchange(ctx context.Context, code, redirectURI string) (*provider.TokenBundle, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return nil, &provider.Error{Kind: provider.KindConfig, Op: "gmail.exchange", Msg: "client credentials are not configured"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindExchange, Op: "gmail.exchange", Msg: "authorization code rejected", Err: err}
	}

	email, err := a.profileEmail(ctx, tok.AccessToken)
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindExchange, Op: "gmail.exchange", Msg: "resolve mailbox address", Err: err}
	}

	return &provider.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Email:        email,
	}, nil
}

// Refresh obtains a new access token. Any failure here is terminal for
// the account: timeouts and revocations alike force a reconnect.
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*provider.TokenBundle, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return nil, &provider.Error{Kind: provider.KindConfig, Op: "gmail.refresh", Msg: "client credentials are not configured"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	src := a.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindRefresh, Op: "gmail.refresh", Msg: "refresh token rejected", Err: err}
	}

	return &provider.TokenBundle{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}, nil
}

// listResponse represents a page of the users/me/messages list response.
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// gmailPart is one MIME part of a Gmail message payload.
type gmailPart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

// gmailMessage represents the relevant fields of a full message response.
type gmailMessage struct {
	ID           string    `json:"id"`
	InternalDate string    `json:"internalDate"` // epoch millis as string
	LabelIDs     []string  `json:"labelIds"`
	Payload      gmailPart `json:"payload"`
}

// FetchMessages lists one page of message ids, then fetches each message
// in full and normalizes it.
func (a *Adapter) FetchMessages(ctx context.Context, accessToken, cursor string, pageSize int) ([]provider.RawMessage, string, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(pageSize))
	if cursor != "" {
		params.Set("pageToken", cursor)
	}

	var page listResponse
	listURL := fmt.Sprintf("%s/users/me/messages?%s", a.apiBaseURL, params.Encode())
	if err := a.getJSON(ctx, accessToken, listURL, &page); err != nil {
		return nil, "", err
	}

	messages := make([]provider.RawMessage, 0, len(page.Messages))
	for _, stub := range page.Messages {
		var full gmailMessage
		msgURL := fmt.Sprintf("%s/users/me/messages/%s?format=full", a.apiBaseURL, stub.ID)
		if err := a.getJSON(ctx, accessToken, msgURL, &full); err != nil {
			return nil, "", err
		}
		messages = append(messages, normalize(&full))
	}

	return messages, page.NextPageToken, nil
}

// getJSON performs an authenticated GET and decodes the response,
// classifying failures per the adapter error taxonomy.
func (a *Adapter) getJSON(ctx context.Context, accessToken, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &provider.Error{Kind: provider.KindFetch, Op: "gmail.fetch", Msg: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &provider.Error{Kind: provider.KindFetch, Op: "gmail.fetch", Msg: "request failed", Err: err, Temporary: true}
	}
	defer resp.Body.Close()

	if err := classifyStatus("gmail.fetch", resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.Error{Kind: provider.KindFetch, Op: "gmail.fetch", Msg: "decode response", Err: err}
	}
	return nil
}

// classifyStatus maps an HTTP status to the adapter error taxonomy.
// 401/403 mean the access token is no longer valid; 429 and 5xx are
// transient; anything else non-2xx is a hard fetch failure.
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.Error{Kind: provider.KindAuth, Op: op, Msg: fmt.Sprintf("access token rejected (HTTP %d)", status)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &provider.Error{Kind: provider.KindFetch, Op: op, Msg: fmt.Sprintf("transient failure (HTTP %d)", status), Temporary: true}
	default:
		return &provider.Error{Kind: provider.KindFetch, Op: op, Msg: fmt.Sprintf("unexpected HTTP %d", status)}
	}
}

// normalize converts a Gmail message to the common RawMessage shape.
func normalize(m *gmailMessage) provider.RawMessage {
	headers := make(map[string]string, len(m.Payload.Headers))
	for _, h := range m.Payload.Headers {
		headers[h.Name] = h.Value
	}

	var receivedAt time.Time
	if millis, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil {
		receivedAt = time.UnixMilli(millis).UTC()
	}

	isRead := true
	isStarred := false
	for _, label := range m.LabelIDs {
		switch label {
		case "UNREAD":
			isRead = false
		case "STARRED":
			isStarred = true
		}
	}

	subject := headers["Subject"]
	if subject == "" {
		subject = "(No Subject)"
	}

	return provider.RawMessage{
		ExternalID: m.ID,
		Subject:    subject,
		Sender:     headers["From"],
		Recipient:  headers["To"],
		CC:         headers["Cc"],
		Body:       extractBody(&m.Payload),
		ReceivedAt: receivedAt,
		IsRead:     isRead,
		IsStarred:  isStarred,
	}
}

// extractBody walks the MIME tree for the first text/plain part. A
// missing or undecodable body resolves to an empty string, never an error.
func extractBody(p *gmailPart) string {
	if strings.HasPrefix(p.MimeType, "text/plain") || len(p.Parts) == 0 {
		if decoded := decodeBody(p.Body.Data); decoded != "" {
			return decoded
		}
	}
	for i := range p.Parts {
		if body := extractBody(&p.Parts[i]); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// profileEmail resolves the connected mailbox address.
func (a *Adapter) profileEmail(ctx context.Context, accessToken string) (string, error) {
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	profileURL := fmt.Sprintf("%s/users/me/profile", a.apiBaseURL)
	if err := a.getJSON(ctx, accessToken, profileURL, &profile); err != nil {
		return "", err
	}
	if profile.EmailAddress == "" {
		return "", fmt.Errorf("profile response missing email address")
	}
	return profile.EmailAddress, nil
}
