package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quentinzango/evenement/internal/models"
)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends one message row. Every call produces a distinct row, even
// for identical text from the same profile; deduplication is a client-side
// concern.
func (r *MessageRepository) Create(profileID, text string) (*models.Message, error) {
	id, err := GenerateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO messages (id, profile_id, text, created_at) VALUES (?, ?, ?, ?)`,
		id, profileID, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:        id,
		ProfileID: profileID,
		Text:      text,
		CreatedAt: now,
	}, nil
}

// History returns every message in insertion order, each joined with its
// author's display name and avatar.
func (r *MessageRepository) History() ([]*models.Message, error) {
	rows, err := r.db.Query(
		`SELECT m.id, m.profile_id, m.text, p.display_name, p.avatar, m.created_at
		FROM messages m
		LEFT JOIN profiles p ON m.profile_id = p.id
		ORDER BY m.rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		var authorName sql.NullString
		var authorAvatar sql.NullString

		err := rows.Scan(&m.ID, &m.ProfileID, &m.Text, &authorName, &authorAvatar, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		m.AuthorName = authorName.String
		m.AuthorAvatar = nullStringToPtr(authorAvatar)
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) FindByID(id string) (*models.Message, error) {
	var m models.Message

	err := r.db.QueryRow(
		`SELECT id, profile_id, text, created_at FROM messages WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.ProfileID, &m.Text, &m.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	return &m, nil
}
