package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lattice/internal/models"
)

const messageHistoryMaxLimit = 200

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(channelID, authorID, content string) (*models.Message, error) {
	id, err := generateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO messages (id, channel_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, channelID, authorID, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
	}, nil
}

func (r *MessageRepository) GetHistory(channelID, beforeID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > messageHistoryMaxLimit {
		limit = 50
	}

	query := `SELECT id, channel_id, author_id, content, created_at, edited_at
		FROM messages WHERE channel_id = ?`
	args := []any{channelID}

	if beforeID != "" {
		query += ` AND rowid < (SELECT rowid FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		var editedAt sql.NullTime

		err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.CreatedAt, &editedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		m.EditedAt = nullTimeToPtr(editedAt)
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) FindByID(id string) (*models.Message, error) {
	var m models.Message
	var editedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, channel_id, author_id, content, created_at, edited_at FROM messages WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.CreatedAt, &editedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	m.EditedAt = nullTimeToPtr(editedAt)

	return &m, nil
}

func (r *MessageRepository) UpdateContent(id, content string) error {
	result, err := r.db.Exec(
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`,
		content, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	return checkRowsAffected(result)
}
