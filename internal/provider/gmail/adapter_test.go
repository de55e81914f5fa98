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

package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mailfold/mailfold/internal/provider"
)

// gmailListBody builds a users/me/messages list response.
func gmailListBody(ids ...string) map[string]interface{} {
	stubs := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		stubs = append(stubs, map[string]string{"id": id})
	}
	return map[string]interface{}{"messages": stubs}
}

// gmailMessageBody builds a full message response with a base64url body.
func gmailMessageBody(id, subject, body string, labels []string) map[string]interface{} {
	return map[string]interface{}{
		"id":           id,
		"internalDate": "1756700000000",
		"labelIds":     labels,
		"payload": map[string]interface{}{
			"mimeType": "text/plain",
			"headers": []map[string]string{
				{"name": "Subject", "value": subject},
				{"name": "From", "value": "sender@example.com"},
				{"name": "To", "value": "me@example.com"},
			},
			"body": map[string]string{
				"data": base64.URLEncoding.EncodeToString([]byte(body)),
			},
		},
	}
}

func TestFetchMessages_NormalizesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			json.NewEncoder(w).Encode(gmailListBody("m1", "m2"))
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"):
			json.NewEncoder(w).Encode(gmailMessageBody("m1", "hello", "plain body", []string{"UNREAD"}))
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m2"):
			json.NewEncoder(w).Encode(gmailMessageBody("m2", "", "starred body", []string{"STARRED"}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := New("id", "secret", server.Client(), WithBaseURLs(server.URL, server.URL, server.URL))

	messages, cursor, err := a.FetchMessages(context.Background(), "tok", "", 50)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty", cursor)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	m1 := messages[0]
	if m1.ExternalID != "m1" || m1.Subject != "hello" || m1.Body != "plain body" {
		t.Errorf("m1 = %+v", m1)
	}
	if m1.IsRead {
		t.Error("m1 should be unread (UNREAD label)")
	}
	if m1.Sender != "sender@example.com" || m1.Recipient != "me@example.com" {
		t.Errorf("m1 addresses = %q -> %q", m1.Sender, m1.Recipient)
	}
	if m1.ReceivedAt.IsZero() {
		t.Error("m1 ReceivedAt not parsed from internalDate")
	}

	m2 := messages[1]
	if m2.Subject != "(No Subject)" {
		t.Errorf("m2 subject = %q, want placeholder", m2.Subject)
	}
	if !m2.IsStarred || !m2.IsRead {
		t.Errorf("m2 flags: starred=%v read=%v", m2.IsStarred, m2.IsRead)
	}
}

func TestFetchMessages_MissingBodyIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/users/me/messages") {
			json.NewEncoder(w).Encode(gmailListBody("m1"))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           "m1",
			"internalDate": "1756700000000",
			"payload": map[string]interface{}{
				"mimeType": "multipart/mixed",
				"headers":  []map[string]string{{"name": "Subject", "value": "attachments only"}},
			},
		})
	}))
	defer server.Close()

	a := New("id", "secret", server.Client(), WithBaseURLs(server.URL, server.URL, server.URL))

	messages, _, err := a.FetchMessages(context.Background(), "tok", "", 50)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "" {
		t.Fatalf("messages = %+v, want single message with empty body", messages)
	}
}

func TestFetchMessages_ErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantKind  provider.Kind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, provider.KindAuth, false},
		{"forbidden", http.StatusForbidden, provider.KindAuth, false},
		{"rate limited", http.StatusTooManyRequests, provider.KindFetch, true},
		{"server error", http.StatusBadGateway, provider.KindFetch, true},
		{"not found", http.StatusNotFound, provider.KindFetch, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			a := New("id", "secret", server.Client(), WithBaseURLs(server.URL, server.URL, server.URL))

			_, _, err := a.FetchMessages(context.Background(), "tok", "", 50)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := provider.KindOf(err); got != tc.wantKind {
				t.Errorf("kind = %v, want %v", got, tc.wantKind)
			}
			if got := provider.IsRetryable(err); got != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestAuthURL_RequiresCredentials(t *testing.T) {
	a := New("", "", http.DefaultClient)
	_, _, err := a.AuthURL("http://localhost/cb")
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if provider.KindOf(err) != provider.KindConfig {
		t.Errorf("kind = %v, want config", provider.KindOf(err))
	}
}

func TestAuthURL_IncludesOfflineAccess(t *testing.T) {
	a := New("id", "secret", http.DefaultClient)
	authURL, state, err := a.AuthURL("http://localhost/cb")
	if err != nil {
		t.Fatalf("AuthURL: %v", err)
	}
	if state == "" {
		t.Error("state nonce is empty")
	}
	if !strings.Contains(authURL, "access_type=offline") {
		t.Errorf("auth URL missing offline access: %s", authURL)
	}
	if !strings.Contains(authURL, "state="+state) {
		t.Errorf("auth URL missing state: %s", authURL)
	}
}

func TestDecodeBody_AcceptsBothAlphabets(t *testing.T) {
	plain := "some text body"
	if got := decodeBody(base64.URLEncoding.EncodeToString([]byte(plain))); got != plain {
		t.Errorf("padded decode = %q", got)
	}
	if got := decodeBody(base64.RawURLEncoding.EncodeToString([]byte(plain))); got != plain {
		t.Errorf("raw decode = %q", got)
	}
	if got := decodeBody("!!!not base64!!!"); got != "" {
		t.Errorf("invalid input decoded to %q, want empty", got)
	}
}
