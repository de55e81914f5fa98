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

package provider

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures. The sync and token layers branch on
// kind, never on error strings.
type Kind string

const (
	// KindConfig — missing or invalid client credentials. Fatal, never retried.
	KindConfig Kind = "config"
	// KindExchange — bad or expired authorization code; the user must
	// restart the OAuth flow.
	KindExchange Kind = "exchange"
	// KindRefresh — revoked or invalid refresh token. Terminal for the
	// account until the user reconnects.
	KindRefresh Kind = "refresh"
	// KindFetch — transient network or rate-limit failure. Retryable
	// with backoff.
	KindFetch Kind = "fetch"
	// KindAuth — expired or invalid access token mid-fetch. Worth one
	// refresh-and-retry before surfacing.
	KindAuth Kind = "auth"
)

// Error carries a machine-readable kind plus a human-readable message.
// Token values must never appear in Msg or in the wrapped error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error

	// Temporary marks fetch failures worth retrying (network errors,
	// HTTP 429, 5xx). Other fetch failures abort the pass immediately.
	Temporary bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind from err, or "" when err is not an adapter error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient fetch failure that the
// sync engine should retry with backoff.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindFetch && pe.Temporary
	}
	return false
}
