package sqlite

import (
	"context"
	"fmt"

	"github.com/iamwavecut/ngwarden/internal/db"
)

// InsertAudit is idempotent by record id, a re-flushed tail never duplicates history.
func (s *sqliteClient) InsertAudit(ctx context.Context, records ...db.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO audit_log (id, chat_id, ts, action, actor_id, target_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.ChatID, rec.Timestamp.UTC(), rec.Action, rec.ActorID, rec.TargetID, rec.Reason); err != nil {
			return fmt.Errorf("insert audit %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// RecordAudit archives one record as it is taken.
func (s *sqliteClient) RecordAudit(ctx context.Context, rec db.AuditRecord) error {
	return s.InsertAudit(ctx, rec)
}

// ListAudit returns the newest records first.
func (s *sqliteClient) ListAudit(ctx context.Context, chatID int64, limit int) ([]db.AuditRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var records []db.AuditRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, chat_id, ts, action, actor_id, target_id, reason
		FROM audit_log
		WHERE chat_id = ?
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit for chat %d: %w", chatID, err)
	}
	return records, nil
}

func (s *sqliteClient) DeleteChatAudit(ctx context.Context, chatID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete audit for chat %d: %w", chatID, err)
	}
	return nil
}
