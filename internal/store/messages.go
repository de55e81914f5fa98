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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailfold/mailfold/internal/models"
)

// MessageStore provides CRUD operations for local and synced messages.
type MessageStore struct {
	pool *pgxpool.Pool
}

const messageColumns = `
	id, user_id, account_id, COALESCE(external_id, ''), sender, recipient,
	cc, bcc, subject, body, priority, is_read, is_starred, is_archived,
	is_trashed, is_sent, trashed_at, received_at, created_at, updated_at`

// Filter narrows a message listing. Nil pointer fields are ignored.
type Filter struct {
	IsRead     *bool
	IsStarred  *bool
	IsArchived *bool
	IsTrashed  *bool
	Priority   models.Priority
	LabelID    int64
	Limit      int
}

// Insert creates a message row and fills in the generated fields.
func (s *MessageStore) Insert(ctx context.Context, m *models.Message) error {
	var externalID *string
	if m.ExternalID != "" {
		externalID = &m.ExternalID
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO messages
			(user_id, account_id, external_id, sender, recipient, cc, bcc,
			 subject, body, priority, is_read, is_starred, is_archived,
			 is_trashed, is_sent, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`,
		m.UserID, m.AccountID, externalID, m.Sender, m.Recipient, m.CC, m.BCC,
		m.Subject, m.Body, m.Priority, m.IsRead, m.IsStarred, m.IsArchived,
		m.IsTrashed, m.IsSent, m.ReceivedAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// ExistsExternal reports whether a message with the given external id is
// already stored for this user. This is the dedup key for sync.
func (s *MessageStore) ExistsExternal(ctx context.Context, userID int64, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM messages WHERE user_id = $1 AND external_id = $2
		)
	`, userID, externalID).Scan(&exists)
	return exists, err
}

// Get retrieves one message owned by the given user.
func (s *MessageStore) Get(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1 AND user_id = $2
	`, messageID, userID)
	return scanMessage(row)
}

// List returns the user's messages, newest first, narrowed by the filter.
func (s *MessageStore) List(ctx context.Context, userID int64, f Filter) ([]models.Message, error) {
	var (
		conds = []string{"user_id = $1"}
		args  = []interface{}{userID}
	)

	addBool := func(col string, v *bool) {
		if v != nil {
			args = append(args, *v)
			conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
		}
	}
	addBool("is_read", f.IsRead)
	addBool("is_starred", f.IsStarred)
	addBool("is_archived", f.IsArchived)
	addBool("is_trashed", f.IsTrashed)

	if f.Priority != "" {
		args = append(args, f.Priority)
		conds = append(conds, "priority = $"+strconv.Itoa(len(args)))
	}
	if f.LabelID != 0 {
		args = append(args, f.LabelID)
		conds = append(conds, "id IN (SELECT message_id FROM message_labels WHERE label_id = $"+strconv.Itoa(len(args))+")")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, messageColumns, strings.Join(conds, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MarkRead sets is_read.
func (s *MessageStore) MarkRead(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET is_read = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID)
	return scanMessage(row)
}

// ToggleStar flips is_starred and returns the updated message.
func (s *MessageStore) ToggleStar(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET is_starred = NOT is_starred, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID)
	return scanMessage(row)
}

// Archive marks a message archived. Archive and trash are mutually
// exclusive, so trash state is cleared in the same statement.
func (s *MessageStore) Archive(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET is_archived = TRUE, is_trashed = FALSE, trashed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID)
	return scanMessage(row)
}

// Trash moves a message to trash, clearing archive state.
func (s *MessageStore) Trash(ctx context.Context, userID, messageID int64, at time.Time) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET is_trashed = TRUE, is_archived = FALSE, trashed_at = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID, at)
	return scanMessage(row)
}

// Restore clears both archive and trash state.
func (s *MessageStore) Restore(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET is_archived = FALSE, is_trashed = FALSE, trashed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID)
	return scanMessage(row)
}

// SetPriority updates the triage level.
func (s *MessageStore) SetPriority(ctx context.Context, userID, messageID int64, p models.Priority) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET priority = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		messageID, userID, p)
	return scanMessage(row)
}

// Delete permanently removes a message. The only hard-delete path.
func (s *MessageStore) Delete(ctx context.Context, userID, messageID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages WHERE id = $1 AND user_id = $2
	`, messageID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d not found", messageID)
	}
	return nil
}

// scanMessage scans a single row into a Message.
func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID, &m.UserID, &m.AccountID, &m.ExternalID, &m.Sender, &m.Recipient,
		&m.CC, &m.BCC, &m.Subject, &m.Body, &m.Priority, &m.IsRead,
		&m.IsStarred, &m.IsArchived, &m.IsTrashed, &m.IsSent,
		&m.TrashedAt, &m.ReceivedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// collectMessages scans multiple rows into a slice of Messages.
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.AccountID, &m.ExternalID, &m.Sender, &m.Recipient,
			&m.CC, &m.BCC, &m.Subject, &m.Body, &m.Priority, &m.IsRead,
			&m.IsStarred, &m.IsArchived, &m.IsTrashed, &m.IsSent,
			&m.TrashedAt, &m.ReceivedAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
