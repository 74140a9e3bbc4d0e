package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const lastFlushKey = "snapshots_flushed_at"

// LastFlush returns the zero time until a flush has been recorded.
func (s *sqliteClient) LastFlush(ctx context.Context) (time.Time, error) {
	raw, err := s.readMarker(ctx, lastFlushKey)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %s marker %q: %w", lastFlushKey, raw, err)
	}
	return at, nil
}

func (s *sqliteClient) SetLastFlush(ctx context.Context, at time.Time) error {
	return s.writeMarker(ctx, lastFlushKey, at.UTC().Format(time.RFC3339Nano))
}

func (s *sqliteClient) readMarker(ctx context.Context, key string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var value string
	if err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s marker: %w", key, err)
	}
	return value, nil
}

func (s *sqliteClient) writeMarker(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write %s marker: %w", key, err)
	}
	return nil
}
