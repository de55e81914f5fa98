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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailfold/mailfold/internal/models"
)

// ErrDuplicateLabel is returned when a label name already exists for the
// user.
var ErrDuplicateLabel = errors.New("label name already exists")

// LabelStore provides CRUD operations for user labels and their message
// attachments.
type LabelStore struct {
	pool *pgxpool.Pool
}

// Create adds a label for the user. Names are unique per user.
func (s *LabelStore) Create(ctx context.Context, userID int64, name, color string) (*models.Label, error) {
	var l models.Label
	err := s.pool.QueryRow(ctx, `
		INSERT INTO labels (user_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, name, color, created_at
	`, userID, name, color).Scan(&l.ID, &l.UserID, &l.Name, &l.Color, &l.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateLabel
		}
		return nil, err
	}
	return &l, nil
}

// List returns all of a user's labels ordered by name.
func (s *LabelStore) List(ctx context.Context, userID int64) ([]models.Label, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, color, created_at
		FROM labels
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Color, &l.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// Delete removes a label; attachments go with it via cascade.
func (s *LabelStore) Delete(ctx context.Context, userID, labelID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM labels WHERE id = $1 AND user_id = $2
	`, labelID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("label %d not found", labelID)
	}
	return nil
}

// Attach links a label to a message. Both must belong to the user;
// attaching twice is a no-op.
func (s *LabelStore) Attach(ctx context.Context, userID, messageID, labelID int64) error {
	if err := s.checkOwnership(ctx, userID, messageID, labelID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_labels (message_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, label_id) DO NOTHING
	`, messageID, labelID)
	return err
}

// Detach removes a label from a message.
func (s *LabelStore) Detach(ctx context.Context, userID, messageID, labelID int64) error {
	if err := s.checkOwnership(ctx, userID, messageID, labelID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM message_labels WHERE message_id = $1 AND label_id = $2
	`, messageID, labelID)
	return err
}

// ListForMessage returns the labels attached to one of the user's
// messages.
func (s *LabelStore) ListForMessage(ctx context.Context, userID, messageID int64) ([]models.Label, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.user_id, l.name, l.color, l.created_at
		FROM labels l
		JOIN message_labels ml ON ml.label_id = l.id
		JOIN messages m ON m.id = ml.message_id
		WHERE ml.message_id = $1 AND m.user_id = $2
		ORDER BY l.name
	`, messageID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Color, &l.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// checkOwnership verifies both the message and the label belong to the
// user before any attachment change.
func (s *LabelStore) checkOwnership(ctx context.Context, userID, messageID, labelID int64) error {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1 AND user_id = $3)
		   AND EXISTS(SELECT 1 FROM labels   WHERE id = $2 AND user_id = $3)
	`, messageID, labelID, userID).Scan(&ok)
	if err != nil && err != pgx.ErrNoRows {
		return err
	}
	if !ok {
		return fmt.Errorf("message %d or label %d not found", messageID, labelID)
	}
	return nil
}
