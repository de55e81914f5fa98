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

// Package outlook implements the provider contract against the Microsoft
// Graph REST API and the Microsoft identity platform OAuth2 endpoints.
package outlook

import (
	"context"
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
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultAuthURL      = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenURL     = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

var scopes = []string{
	"https://graph.microsoft.com/Mail.Read",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// Adapter talks to Microsoft Graph for one configured OAuth client.
type Adapter struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	// Overridable for tests.
	graphBaseURL string
	authURL      string
	tokenURL     string
}

// Option adjusts adapter construction.
type Option func(*Adapter)

// WithBaseURLs points the adapter at alternate Graph and OAuth endpoints.
func WithBaseURLs(graph, auth, token string) Option {
	return func(a *Adapter) {
		a.graphBaseURL = graph
		a.authURL = auth
		a.tokenURL = token
	}
}

// New creates an Outlook adapter. httpClient bounds every remote call.
func New(clientID, clientSecret string, httpClient *http.Client, opts ...Option) *Adapter {
	a := &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		graphBaseURL: defaultGraphBaseURL,
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() models.Provider { return models.ProviderOutlook }

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

// AuthURL builds the Microsoft consent URL.
func (a *Adapter) AuthURL(redirectURI string) (string, string, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return "", "", &provider.Error{Kind: provider.KindConfig, Op: "outlook.authorize", Msg: "client credentials are not configured"}
	}

	state := uuid.NewString()
	authURL := a.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nil
}

// Exchange trades an authorization code for tokens and resolves the
// mailbox address via the Graph /me endpoint.
func (a *Adapter) Exchange(ctx context.Context, code, redirectURI string) (*provider.TokenBundle, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return nil, &provider.Error{Kind: provider.KindConfig, Op: "outlook.exchange", Msg: "client credentials are not configured"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindExchange, Op: "outlook.exchange", Msg: "authorization code rejected", Err: err}
	}

	email, err := a.profileEmail(ctx, tok.AccessToken)
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindExchange, Op: "outlook.exchange", Msg: "resolve mailbox address", Err: err}
	}

	return &provider.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Email:        email,
	}, nil
}

// Refresh obtains a new access token. Any failure is terminal for the
// account until the user reconnects.
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*provider.TokenBundle, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return nil, &provider.Error{Kind: provider.KindConfig, Op: "outlook.refresh", Msg: "client credentials are not configured"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	src := a.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindRefresh, Op: "outlook.refresh", Msg: "refresh token rejected", Err: err}
	}

	return &provider.TokenBundle{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}, nil
}

// graphAddress mirrors Graph's nested emailAddress shape.
type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"emailAddress"`
}

// graphMessage represents the relevant fields of a Graph message.
type graphMessage struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	From             graphAddress   `json:"from"`
	ToRecipients     []graphAddress `json:"toRecipients"`
	CcRecipients     []graphAddress `json:"ccRecipients"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ReceivedDateTime string `json:"receivedDateTime"`
	IsRead           bool   `json:"isRead"`
	Flag             struct {
		FlagStatus string `json:"flagStatus"`
	} `json:"flag"`
}

// messagesResponse represents a page of the /me/messages response.
type messagesResponse struct {
	Value []graphMessage `json:"value"`
}

// FetchMessages lists one page of messages ordered newest first. The
// cursor is a numeric skip offset; Graph's $skip pagination keeps the
// contract's opaque-cursor shape.
func (a *Adapter) FetchMessages(ctx context.Context, accessToken, cursor string, pageSize int) ([]provider.RawMessage, string, error) {
	skip := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", &provider.Error{Kind: provider.KindFetch, Op: "outlook.fetch", Msg: "invalid page cursor"}
		}
		skip = n
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(pageSize))
	params.Set("$skip", strconv.Itoa(skip))
	params.Set("$orderby", "receivedDateTime DESC")
	params.Set("$select", "id,subject,from,toRecipients,ccRecipients,body,receivedDateTime,isRead,flag")

	listURL := fmt.Sprintf("%s/me/messages?%s", a.graphBaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, "", &provider.Error{Kind: provider.KindFetch, Op: "outlook.fetch", Msg: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="text"`)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", &provider.Error{Kind: provider.KindFetch, Op: "outlook.fetch", Msg: "request failed", Err: err, Temporary: true}
	}
	defer resp.Body.Close()

	if err := classifyStatus("outlook.fetch", resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, "", err
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", &provider.Error{Kind: provider.KindFetch, Op: "outlook.fetch", Msg: "decode response", Err: err}
	}

	messages := make([]provider.RawMessage, 0, len(page.Value))
	for i := range page.Value {
		messages = append(messages, normalize(&page.Value[i]))
	}

	nextCursor := ""
	if len(page.Value) == pageSize {
		nextCursor = strconv.Itoa(skip + len(page.Value))
	}

	return messages, nextCursor, nil
}

// classifyStatus maps an HTTP status to the adapter error taxonomy.
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

// normalize converts a Graph message to the common RawMessage shape.
func normalize(m *graphMessage) provider.RawMessage {
	var receivedAt time.Time
	if m.ReceivedDateTime != "" {
		if t, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
			receivedAt = t.UTC()
		}
	}

	subject := m.Subject
	if subject == "" {
		subject = "(No Subject)"
	}

	return provider.RawMessage{
		ExternalID: m.ID,
		Subject:    subject,
		Sender:     m.From.EmailAddress.Address,
		Recipient:  joinAddresses(m.ToRecipients),
		CC:         joinAddresses(m.CcRecipients),
		Body:       m.Body.Content,
		ReceivedAt: receivedAt,
		IsRead:     m.IsRead,
		IsStarred:  m.Flag.FlagStatus == "flagged",
	}
}

// joinAddresses flattens Graph recipients into a comma-separated list.
func joinAddresses(recipients []graphAddress) string {
	addrs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.EmailAddress.Address != "" {
			addrs = append(addrs, r.EmailAddress.Address)
		}
	}
	return strings.Join(addrs, ", ")
}

// profileEmail resolves the connected mailbox address from /me.
func (a *Adapter) profileEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.graphBaseURL+"/me", nil)
	if err != nil {
		return "", fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph /me returned HTTP %d", resp.StatusCode)
	}

	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}

	if me.Mail != "" {
		return me.Mail, nil
	}
	if me.UserPrincipalName != "" {
		return me.UserPrincipalName, nil
	}
	return "", fmt.Errorf("profile response missing mailbox address")
}
