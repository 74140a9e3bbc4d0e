package observability

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iamwavecut/ngwarden/internal/db"
)

// AuditJournal mirrors every audit record into a JSON-lines file.
type AuditJournal struct {
	logger *zap.Logger
}

func NewAuditJournal(path string) (*AuditJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "logged_at"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &AuditJournal{logger: logger.Named("audit")}, nil
}

func newAuditJournalWithCore(core zapcore.Core) *AuditJournal {
	return &AuditJournal{logger: zap.New(core).Named("audit")}
}

func (j *AuditJournal) RecordAudit(_ context.Context, rec db.AuditRecord) error {
	j.logger.Info(rec.Action,
		zap.String("id", rec.ID),
		zap.Int64("chat_id", rec.ChatID),
		zap.Time("ts", rec.Timestamp),
		zap.Int64("actor_id", rec.ActorID),
		zap.Int64("target_id", rec.TargetID),
		zap.String("reason", rec.Reason),
	)
	return nil
}

func (j *AuditJournal) Close() error {
	_ = j.logger.Sync()
	return nil
}
