package store

import (
	"context"
	"fmt"
	"time"
)

// Settings is the singleton row of guild-wide settings the gateway
// broadcasts on change (spec.md §4.2 SETTINGS_UPDATED) and polls for the
// presence idle threshold.
type Settings struct {
	SlowModeSeconds     int       `json:"slowModeSeconds"`
	IdleTimeoutMinutes  int       `json:"idleTimeoutMinutes"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get() (*Settings, error) {
	var s Settings
	err := r.db.QueryRow(`SELECT slow_mode_seconds, idle_timeout_minutes, updated_at FROM settings WHERE id = 1`).
		Scan(&s.SlowModeSeconds, &s.IdleTimeoutMinutes, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepository) UpdateSlowMode(seconds int) (*Settings, error) {
	now := time.Now().UTC()
	_, err := r.db.Exec(`UPDATE settings SET slow_mode_seconds = ?, updated_at = ? WHERE id = 1`, seconds, now)
	if err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	return r.Get()
}

func (r *SettingsRepository) UpdateIdleTimeoutMinutes(minutes int) (*Settings, error) {
	now := time.Now().UTC()
	_, err := r.db.Exec(`UPDATE settings SET idle_timeout_minutes = ?, updated_at = ? WHERE id = 1`, minutes, now)
	if err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	return r.Get()
}

// IdleTimeoutMinutes adapts Get to the gateway's SettingsProvider contract.
func (r *SettingsRepository) IdleTimeoutMinutes(ctx context.Context) (int, error) {
	s, err := r.Get()
	if err != nil {
		return 0, err
	}
	return s.IdleTimeoutMinutes, nil
}
