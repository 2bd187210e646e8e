package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

var _ repository.SettingsRepository = (*DB)(nil)

// GetSetting returns the value of a system setting.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.NotFound("setting", key)
		}
		return "", fmt.Errorf("sqlite: getting setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a system setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: setting %s: %w", key, err)
	}
	return nil
}
