package db

import (
	"context"
	"time"
)

// SnapshotStore persists one document per chat.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, chatID int64, data []byte) error
	LoadSnapshot(ctx context.Context, chatID int64) ([]byte, error)
	ListSnapshotChats(ctx context.Context) ([]int64, error)
	DeleteSnapshot(ctx context.Context, chatID int64) error
}

type Client interface {
	SnapshotStore
	Close() error
	GetSettings(ctx context.Context, chatID int64) (*Settings, error)
	SetSettings(ctx context.Context, settings *Settings) error
	InsertAudit(ctx context.Context, records ...AuditRecord) error
	ListAudit(ctx context.Context, chatID int64, limit int) ([]AuditRecord, error)
	DeleteChatAudit(ctx context.Context, chatID int64) error
	LastFlush(ctx context.Context) (time.Time, error)
	SetLastFlush(ctx context.Context, at time.Time) error
}
