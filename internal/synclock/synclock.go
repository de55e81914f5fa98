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

// Package synclock provides a per-account sync mutex using a Redis SET NX
// with TTL. It keeps the API-triggered sync and the background sweeper
// from running a sync pass on the same account at once.
package synclock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed sync pass can hold the lock.
	DefaultTTL = 5 * time.Minute

	// keyPrefix namespaces lock keys in Redis.
	keyPrefix = "mailfold:synclock:"
)

// Locker hands out per-account sync locks.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a locker backed by Redis. A non-positive ttl falls back to
// DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire tries to take the lock for one account. Returns true if the
// lock was taken; false means another sync pass holds it.
func (l *Locker) Acquire(ctx context.Context, accountID int64) (bool, error) {
	key := fmt.Sprintf("%s%d", keyPrefix, accountID)

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("synclock SETNX: %w", err)
	}
	return set, nil
}

// Release drops the lock. Safe to call even if the TTL already expired.
func (l *Locker) Release(ctx context.Context, accountID int64) error {
	key := fmt.Sprintf("%s%d", keyPrefix, accountID)
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("synclock DEL: %w", err)
	}
	return nil
}
