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

package outlook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mailfold/mailfold/internal/provider"
)

// graphMessageBody builds one Graph message for the list response.
func graphMessageBody(id, subject string, read, flagged bool) map[string]interface{} {
	flagStatus := "notFlagged"
	if flagged {
		flagStatus = "flagged"
	}
	return map[string]interface{}{
		"id":      id,
		"subject": subject,
		"from": map[string]interface{}{
			"emailAddress": map[string]string{"address": "sender@contoso.com"},
		},
		"toRecipients": []map[string]interface{}{
			{"emailAddress": map[string]string{"address": "a@contoso.com"}},
			{"emailAddress": map[string]string{"address": "b@contoso.com"}},
		},
		"body":             map[string]string{"contentType": "text", "content": "body of " + id},
		"receivedDateTime": "2026-08-30T12:00:00Z",
		"isRead":           read,
		"flag":             map[string]string{"flagStatus": flagStatus},
	}
}

func TestFetchMessages_ParsesPageAndCursor(t *testing.T) {
	var gotSkip, gotTop string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSkip = r.URL.Query().Get("$skip")
		gotTop = r.URL.Query().Get("$top")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				graphMessageBody("o1", "first", false, true),
				graphMessageBody("o2", "", true, false),
			},
		})
	}))
	defer server.Close()

	a := New("id", "secret", server.Client(), WithBaseURLs(server.URL, server.URL, server.URL))

	messages, cursor, err := a.FetchMessages(context.Background(), "tok", "10", 2)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if gotSkip != "10" || gotTop != "2" {
		t.Errorf("query $skip=%s $top=%s, want 10 and 2", gotSkip, gotTop)
	}
	// Full page of 2 advances the cursor past the fetched rows.
	if cursor != "12" {
		t.Errorf("cursor = %q, want 12", cursor)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	m1 := messages[0]
	if m1.ExternalID != "o1" || m1.Subject != "first" || m1.Body != "body of o1" {
		t.Errorf("m1 = %+v", m1)
	}
	if !m1.IsStarred || m1.IsRead {
		t.Errorf("m1 flags: starred=%v read=%v", m1.IsStarred, m1.IsRead)
	}
	if m1.Recipient != "a@contoso.com, b@contoso.com" {
		t.Errorf("m1 recipient = %q", m1.Recipient)
	}
	if m1.ReceivedAt.IsZero() {
		t.Error("m1 ReceivedAt not parsed")
	}

	if messages[1].Subject != "(No Subject)" {
		t.Errorf("m2 subject = %q, want placeholder", messages[1].Subject)
	}
}

func TestFetchMessages_PartialPageEndsPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{graphMessageBody("o1", "only", true, false)},
		})
	}))
	defer server.Close()

	a := New("id", "secret", server.Client(), WithBaseURLs(server.URL, server.URL, server.URL))

	_, cursor, err := a.FetchMessages(context.Background(), "tok", "", 50)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty for partial page", cursor)
	}
}

func TestFetchMessages_InvalidCursor(t *testing.T) {
	a := New("id", "secret", http.DefaultClient)
	_, _, err := a.FetchMessages(context.Background(), "tok", "not-a-number", 50)
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	if provider.KindOf(err) != provider.KindFetch || provider.IsRetryable(err) {
		t.Errorf("kind = %v retryable = %v, want non-retryable fetch", provider.KindOf(err), provider.IsRetryable(err))
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
		{"throttled", http.StatusTooManyRequests, provider.KindFetch, true},
		{"service unavailable", http.StatusServiceUnavailable, provider.KindFetch, true},
		{"bad request", http.StatusBadRequest, provider.KindFetch, false},
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
