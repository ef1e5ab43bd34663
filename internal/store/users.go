package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lattice/internal/models"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	return r.findOne(`SELECT id, username, email, avatar_url, role, created_at, updated_at, suspended_at, session_version
		FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	return r.findOne(`SELECT id, username, email, avatar_url, role, created_at, updated_at, suspended_at, session_version
		FROM users WHERE email = ?`, email)
}

func (r *UserRepository) UpdateUsername(id, username string) error {
	result, err := r.db.Exec(
		`UPDATE users SET username = ?, updated_at = ? WHERE id = ?`,
		username, time.Now().UTC(), id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("updating username: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateAvatarURL(id, avatarURL string) error {
	result, err := r.db.Exec(
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating avatar: %w", err)
	}
	return checkRowsAffected(result)
}

// BumpSessionVersion increments the user's session_version counter (used
// when a user is suspended or force-logged-out). Token verification does not
// compare claims against it: auth.Verifier checks only the signature and the
// standard registered claims.
func (r *UserRepository) BumpSessionVersion(id string) error {
	result, err := r.db.Exec(
		`UPDATE users SET session_version = session_version + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("bumping session version: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var avatarURL sql.NullString
	var updatedAt, suspendedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&avatarURL,
		&u.Role,
		&u.CreatedAt,
		&updatedAt,
		&suspendedAt,
		&u.SessionVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if avatarURL.Valid {
		u.AvatarURL = &avatarURL.String
	}
	u.UpdatedAt = nullTimeToPtr(updatedAt)
	u.SuspendedAt = nullTimeToPtr(suspendedAt)

	return &u, nil
}
