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

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailfold/mailfold/internal/models"
)

// PreferenceStore provides the per-user settings row, created lazily on
// first read.
type PreferenceStore struct {
	pool *pgxpool.Pool
}

const preferenceColumns = `
	id, user_id, timezone, dark_mode_preference, dark_mode_enabled,
	email_notifications, desktop_notifications, weekly_digest,
	auto_archive_read, created_at, updated_at`

// GetOrCreate returns the user's preferences, inserting defaults if no
// row exists yet.
func (s *PreferenceStore) GetOrCreate(ctx context.Context, userID int64) (*models.Preference, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+preferenceColumns+`
		FROM preferences
		WHERE user_id = $1
	`, userID)
	p, err := scanPreference(row)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	row = s.pool.QueryRow(ctx, `
		INSERT INTO preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = preferences.updated_at
		RETURNING `+preferenceColumns,
		userID)
	return scanPreference(row)
}

// Update overwrites the settings row and returns the result.
func (s *PreferenceStore) Update(ctx context.Context, p *models.Preference) (*models.Preference, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE preferences
		SET timezone              = $2,
		    dark_mode_preference  = $3,
		    dark_mode_enabled     = $4,
		    email_notifications   = $5,
		    desktop_notifications = $6,
		    weekly_digest         = $7,
		    auto_archive_read     = $8,
		    updated_at            = NOW()
		WHERE user_id = $1
		RETURNING `+preferenceColumns,
		p.UserID, p.Timezone, p.DarkModePreference, p.DarkModeEnabled,
		p.EmailNotifications, p.DesktopNotifications, p.WeeklyDigest,
		p.AutoArchiveRead)
	return scanPreference(row)
}

func scanPreference(row pgx.Row) (*models.Preference, error) {
	var p models.Preference
	err := row.Scan(
		&p.ID, &p.UserID, &p.Timezone, &p.DarkModePreference, &p.DarkModeEnabled,
		&p.EmailNotifications, &p.DesktopNotifications, &p.WeeklyDigest,
		&p.AutoArchiveRead, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
