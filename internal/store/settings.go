package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Setting keys read by the document renderer.
const (
	SettingSiteTitle    = "site_title"
	SettingOrganisation = "organisation"
)

// GetSetting returns a single setting value.
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT setting_value FROM ioc_settings WHERE setting_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying setting %q: %w", key, err)
	}
	return v, nil
}

// Settings returns all settings as a map.
func (s *Store) Settings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT setting_key, setting_value FROM ioc_settings`)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting inserts or replaces a setting.
func (s *Store) SetSetting(key, value string) error {
	var query string
	switch s.driver {
	case DriverMySQL:
		query = `INSERT INTO ioc_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO ioc_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(setting_key) DO UPDATE SET
				setting_value = excluded.setting_value,
				updated_at = excluded.updated_at`
	}
	if _, err := s.db.Exec(query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// InsertSettingIfAbsentSQL returns the dialect's statement that writes a
// default setting without overwriting an existing value.
func (s *Store) InsertSettingIfAbsentSQL() string {
	if s.driver == DriverMySQL {
		return `INSERT IGNORE INTO ioc_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)`
	}
	return `INSERT OR IGNORE INTO ioc_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)`
}
