package store

import (
	"database/sql"
	"errors"
	"fmt"

	"lattice/internal/apperr"
	"lattice/internal/models"
)

type ChannelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) FindByID(id string) (*models.Channel, error) {
	var c models.Channel
	err := r.db.QueryRow(`SELECT id, name, type, min_role FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Type, &c.MinRole)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	return &c, nil
}

func (r *ChannelRepository) FindAll() ([]*models.Channel, error) {
	rows, err := r.db.Query(`SELECT id, name, type, min_role FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*models.Channel, 0)
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.MinRole); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

func (r *ChannelRepository) FindAllByType(t models.ChannelType) ([]*models.Channel, error) {
	rows, err := r.db.Query(`SELECT id, name, type, min_role FROM channels WHERE type = ? ORDER BY name`, t)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*models.Channel, 0)
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.MinRole); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

// Authorize enforces a channel's MinRole against the session's role —
// spec.md §3's role ladder, gated per channel rather than globally.
func (r *ChannelRepository) Authorize(channelID string, role models.Role) error {
	channel, err := r.FindByID(channelID)
	if err != nil {
		return err
	}
	if !role.AtLeast(channel.MinRole) {
		return apperr.New(apperr.CodeForbidden, "role does not meet this channel's minimum")
	}
	return nil
}
