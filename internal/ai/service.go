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
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailfold/mailfold/internal/models"
)

// priorityBodyLimit caps how much body text goes into the priority
// prompt.
const priorityBodyLimit = 1000

// Summary is the structured result of summarizing one email.
type Summary struct {
	Summary     string `json:"summary"`
	KeyPoints   string `json:"key_points"`
	ActionItems string `json:"action_items"`
	Full        string `json:"full_summary"`
}

// Reply is a drafted response to one email.
type Reply struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// toneDescriptions maps a requested reply tone to prompt wording.
var toneDescriptions = map[string]string{
	"professional": "professional and courteous",
	"friendly":     "warm and friendly while remaining professional",
	"formal":       "formal and respectful",
	"casual":       "casual and conversational",
}

// Service wraps a Generator with email-specific prompts and parsing.
type Service struct {
	gen Generator
}

// NewService creates the AI service over the given generator.
func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// DetectPriority classifies one email with the model, falling back to
// the keyword classifier when the model fails or answers off-format.
func (s *Service) DetectPriority(ctx context.Context, subject, body, sender string) models.Priority {
	trimmed := body
	if len(trimmed) > priorityBodyLimit {
		trimmed = trimmed[:priorityBodyLimit]
	}

	prompt := fmt.Sprintf(`Analyze the following email and determine its priority level.
Consider urgency indicators, deadlines, importance keywords, tone, and context.

Sender: %s
Subject: %s
Body: %s

Priority Criteria:
- HIGH: Urgent requests, deadlines within 24-48 hours, critical issues, important stakeholders, words like "urgent", "asap", "critical", "emergency"
- NORMAL: Regular business correspondence, questions, updates, standard requests
- LOW: Newsletters, promotional emails, FYI messages, non-urgent updates

Respond with ONLY one word: high, normal, or low`, sender, subject, trimmed)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("ai priority detection failed", "error", err)
		return models.DetectPriority(subject, body)
	}

	answer := strings.ToLower(strings.TrimSpace(text))
	if models.ValidPriority(answer) {
		return models.Priority(answer)
	}
	return models.DetectPriority(subject, body)
}

// Summarize produces a structured summary of one email. When the model
// output misses the expected markers, the raw text lands in Full and the
// structured fields carry placeholders.
func (s *Service) Summarize(ctx context.Context, subject, body, sender string) (*Summary, error) {
	prompt := fmt.Sprintf(`Analyze this email and provide a comprehensive summary.

From: %s
Subject: %s
Body: %s

Provide:
1. A concise 2-3 sentence summary
2. Key points (bullet list)
3. Action items or next steps (if any)

Format your response as:
SUMMARY: [your summary here]
KEY_POINTS:
- [point 1]
- [point 2]
ACTION_ITEMS:
- [action 1]
(or "None" if no actions needed)`, sender, subject, body)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseSummary(text), nil
}

// SuggestReply drafts a reply in the requested tone. Unknown tones fall
// back to professional. An off-format model response becomes the reply
// body under a "Re:" subject.
func (s *Service) SuggestReply(ctx context.Context, subject, body, sender, tone, extra string) (*Reply, error) {
	toneDesc, ok := toneDescriptions[tone]
	if !ok {
		toneDesc = toneDescriptions["professional"]
	}

	var contextLine string
	if extra != "" {
		contextLine = "Additional Context: " + extra + "\n"
	}

	prompt := fmt.Sprintf(`Generate a %s reply to the following email.

Original Email:
From: %s
Subject: %s
Body: %s

%s
Generate a complete email reply that:
1. Acknowledges the original email
2. Addresses the key points or questions
3. Is %s
4. Includes appropriate greeting and closing
5. Is concise but complete (2-4 paragraphs)

Format:
SUBJECT: [suggested reply subject]
BODY:
[complete email reply with greeting, body, and closing]`,
		toneDesc, sender, subject, body, contextLine, toneDesc)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseReply(text, subject), nil
}

// parseSummary extracts the marker-delimited sections. Parsing is
// defensive: a response without markers is still returned whole.
func parseSummary(text string) *Summary {
	out := &Summary{Full: text}

	if idx := strings.Index(text, "SUMMARY:"); idx >= 0 {
		rest := text[idx+len("SUMMARY:"):]
		if end := strings.Index(rest, "KEY_POINTS:"); end >= 0 {
			out.Summary = strings.TrimSpace(rest[:end])
		} else {
			out.Summary = strings.TrimSpace(rest)
		}
	}

	if idx := strings.Index(text, "KEY_POINTS:"); idx >= 0 {
		rest := text[idx+len("KEY_POINTS:"):]
		if end := strings.Index(rest, "ACTION_ITEMS:"); end >= 0 {
			out.KeyPoints = strings.TrimSpace(rest[:end])
		} else {
			out.KeyPoints = strings.TrimSpace(rest)
		}
	}

	if idx := strings.Index(text, "ACTION_ITEMS:"); idx >= 0 {
		actions := strings.TrimSpace(text[idx+len("ACTION_ITEMS:"):])
		if strings.EqualFold(actions, "none") {
			actions = "No action required"
		}
		out.ActionItems = actions
	}

	if out.Summary == "" {
		out.Summary = text
	}
	return out
}

// parseReply splits a SUBJECT:/BODY: response, falling back to the whole
// text as body when the markers are missing.
func parseReply(text, originalSubject string) *Reply {
	subjIdx := strings.Index(text, "SUBJECT:")
	bodyIdx := strings.Index(text, "BODY:")
	if subjIdx < 0 || bodyIdx < 0 || bodyIdx < subjIdx {
		return &Reply{
			Subject: "Re: " + originalSubject,
			Body:    text,
		}
	}

	return &Reply{
		Subject: strings.TrimSpace(text[subjIdx+len("SUBJECT:") : bodyIdx]),
		Body:    strings.TrimSpace(text[bodyIdx+len("BODY:"):]),
	}
}
