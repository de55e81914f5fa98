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

package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mailfold/mailfold/internal/models"
)

// cannedGenerator returns a fixed response or error.
type cannedGenerator struct {
	text string
	err  error
}

func (g *cannedGenerator) Generate(context.Context, string) (string, error) {
	return g.text, g.err
}

func TestDetectPriority_AcceptsValidAnswer(t *testing.T) {
	svc := NewService(&cannedGenerator{text: "  Low \n"})
	got := svc.DetectPriority(context.Background(), "newsletter", "monthly digest", "news@example.com")
	if got != models.PriorityLow {
		t.Errorf("priority = %q, want low", got)
	}
}

func TestDetectPriority_OffFormatFallsBackToKeywords(t *testing.T) {
	svc := NewService(&cannedGenerator{text: "I think this email is quite important overall."})
	got := svc.DetectPriority(context.Background(), "URGENT: outage", "", "ops@example.com")
	if got != models.PriorityHigh {
		t.Errorf("priority = %q, want keyword fallback high", got)
	}
}

func TestDetectPriority_ErrorFallsBackToKeywords(t *testing.T) {
	svc := NewService(&cannedGenerator{err: errors.New("model unavailable")})

	if got := svc.DetectPriority(context.Background(), "hello", "nothing pressing", ""); got != models.PriorityNormal {
		t.Errorf("priority = %q, want normal", got)
	}
	if got := svc.DetectPriority(context.Background(), "asap please", "", ""); got != models.PriorityHigh {
		t.Errorf("priority = %q, want high", got)
	}
}

func TestSummarize_ParsesMarkers(t *testing.T) {
	response := `SUMMARY: The sender asks for a budget review before Friday.
KEY_POINTS:
- Budget draft attached
- Deadline is Friday
ACTION_ITEMS:
- Review the draft`

	svc := NewService(&cannedGenerator{text: response})
	summary, err := svc.Summarize(context.Background(), "Budget", "...", "cfo@example.com")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if !strings.Contains(summary.Summary, "budget review") {
		t.Errorf("summary = %q", summary.Summary)
	}
	if !strings.Contains(summary.KeyPoints, "Deadline is Friday") {
		t.Errorf("key points = %q", summary.KeyPoints)
	}
	if !strings.Contains(summary.ActionItems, "Review the draft") {
		t.Errorf("action items = %q", summary.ActionItems)
	}
	if summary.Full != response {
		t.Error("full text not preserved")
	}
}

func TestSummarize_NoneActionItems(t *testing.T) {
	response := "SUMMARY: FYI only.\nKEY_POINTS:\n- Nothing to do\nACTION_ITEMS:\nNone"

	svc := NewService(&cannedGenerator{text: response})
	summary, err := svc.Summarize(context.Background(), "FYI", "...", "")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.ActionItems != "No action required" {
		t.Errorf("action items = %q, want placeholder", summary.ActionItems)
	}
}

func TestSummarize_MissingMarkersKeepsWholeText(t *testing.T) {
	response := "The email is about the quarterly budget and asks for review."

	svc := NewService(&cannedGenerator{text: response})
	summary, err := svc.Summarize(context.Background(), "Budget", "...", "")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Summary != response || summary.Full != response {
		t.Errorf("summary = %+v, want raw text carried through", summary)
	}
}

func TestSuggestReply_ParsesMarkers(t *testing.T) {
	response := `SUBJECT: Re: Budget review
BODY:
Hi,

Happy to review the draft by Thursday.

Best`

	svc := NewService(&cannedGenerator{text: response})
	reply, err := svc.SuggestReply(context.Background(), "Budget review", "...", "cfo@example.com", "friendly", "")
	if err != nil {
		t.Fatalf("SuggestReply: %v", err)
	}
	if reply.Subject != "Re: Budget review" {
		t.Errorf("subject = %q", reply.Subject)
	}
	if !strings.HasPrefix(reply.Body, "Hi,") || !strings.HasSuffix(reply.Body, "Best") {
		t.Errorf("body = %q", reply.Body)
	}
}

func TestSuggestReply_MissingMarkersFallsBack(t *testing.T) {
	response := "Thanks for the update, I will have a look."

	svc := NewService(&cannedGenerator{text: response})
	reply, err := svc.SuggestReply(context.Background(), "Status update", "...", "", "professional", "")
	if err != nil {
		t.Fatalf("SuggestReply: %v", err)
	}
	if reply.Subject != "Re: Status update" {
		t.Errorf("subject = %q, want Re: fallback", reply.Subject)
	}
	if reply.Body != response {
		t.Errorf("body = %q", reply.Body)
	}
}

func TestSuggestReply_GeneratorError(t *testing.T) {
	svc := NewService(&cannedGenerator{err: errors.New("model unavailable")})
	if _, err := svc.SuggestReply(context.Background(), "x", "y", "", "", ""); err == nil {
		t.Fatal("expected error")
	}
}
