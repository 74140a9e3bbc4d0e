package bot

import (
	"context"

	"github.com/iamwavecut/ngwarden/internal/event"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

type service struct {
	engine *moderation.Engine
	lanes  submitter
	admins adminChecker
	ops    messenger
}

func NewService(engine *moderation.Engine, lanes submitter, admins adminChecker, ops messenger) *service {
	return &service{
		engine: engine,
		lanes:  lanes,
		admins: admins,
		ops:    ops,
	}
}

func (s *service) Engine() *moderation.Engine {
	return s.engine
}

func (s *service) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.admins.IsAdmin(ctx, chatID, userID)
}

func (s *service) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	return s.ops.Reply(ctx, chatID, messageID, text)
}

func (s *service) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return s.ops.AnswerCallback(ctx, callbackID, text, alert)
}

func (s *service) Submit(ctx context.Context, chatID int64, task event.Task) error {
	return s.lanes.Submit(ctx, chatID, task)
}
