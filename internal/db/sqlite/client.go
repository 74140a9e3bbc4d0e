package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iamwavecut/tool"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngwarden/internal/db"
	"github.com/iamwavecut/ngwarden/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

var _ db.Client = (*sqliteClient)(nil)

func NewSQLiteClient(ctx context.Context, dir, name string) (*sqliteClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dbx, err := sqlx.Open("sqlite", filepath.Join(dir, name)+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbx.SetMaxOpenConns(1)
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.ExecContext(ctx, dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	if n > 0 {
		log.WithField("object", "sqlite").Infof("applied %d migrations", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (s *sqliteClient) Close() error {
	return s.db.Close()
}

// GetSettings returns nil without error when the chat has no stored overrides.
func (s *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := &db.Settings{}
	err := s.db.GetContext(ctx, res, `
		SELECT id, title, flood_threshold, flood_window_seconds, flood_mute_seconds,
			spam_threshold, spam_decay_seconds, spam_action, max_warnings, captcha_timeout_seconds,
			antiflood_enabled, antispam_enabled, captcha_enabled, forward_protection_enabled,
			word_filters, updated_at
		FROM chats WHERE id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings for chat %d: %w", chatID, err)
	}
	return res, nil
}

func (s *sqliteClient) SetSettings(ctx context.Context, settings *db.Settings) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO chats (id, title, flood_threshold, flood_window_seconds, flood_mute_seconds,
			spam_threshold, spam_decay_seconds, spam_action, max_warnings, captcha_timeout_seconds,
			antiflood_enabled, antispam_enabled, captcha_enabled, forward_protection_enabled,
			word_filters, updated_at)
		VALUES (:id, :title, :flood_threshold, :flood_window_seconds, :flood_mute_seconds,
			:spam_threshold, :spam_decay_seconds, :spam_action, :max_warnings, :captcha_timeout_seconds,
			:antiflood_enabled, :antispam_enabled, :captcha_enabled, :forward_protection_enabled,
			:word_filters, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
		title=excluded.title,
		flood_threshold=excluded.flood_threshold,
		flood_window_seconds=excluded.flood_window_seconds,
		flood_mute_seconds=excluded.flood_mute_seconds,
		spam_threshold=excluded.spam_threshold,
		spam_decay_seconds=excluded.spam_decay_seconds,
		spam_action=excluded.spam_action,
		max_warnings=excluded.max_warnings,
		captcha_timeout_seconds=excluded.captcha_timeout_seconds,
		antiflood_enabled=excluded.antiflood_enabled,
		antispam_enabled=excluded.antispam_enabled,
		captcha_enabled=excluded.captcha_enabled,
		forward_protection_enabled=excluded.forward_protection_enabled,
		word_filters=excluded.word_filters,
		updated_at=excluded.updated_at;
	`
	return tool.Err(s.db.NamedExecContext(ctx, query, settings))
}
