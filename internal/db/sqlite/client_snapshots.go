package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *sqliteClient) SaveSnapshot(ctx context.Context, chatID int64, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO chat_snapshots (chat_id, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, data); err != nil {
		return fmt.Errorf("save snapshot for chat %d: %w", chatID, err)
	}
	return nil
}

// LoadSnapshot returns nil payload when the chat was never flushed.
func (s *sqliteClient) LoadSnapshot(ctx context.Context, chatID int64) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM chat_snapshots WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for chat %d: %w", chatID, err)
	}
	return payload, nil
}

func (s *sqliteClient) ListSnapshotChats(ctx context.Context) ([]int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var chatIDs []int64
	if err := s.db.SelectContext(ctx, &chatIDs, `SELECT chat_id FROM chat_snapshots ORDER BY chat_id`); err != nil {
		return nil, fmt.Errorf("list snapshot chats: %w", err)
	}
	return chatIDs, nil
}

func (s *sqliteClient) DeleteSnapshot(ctx context.Context, chatID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_snapshots WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete snapshot for chat %d: %w", chatID, err)
	}
	return nil
}
