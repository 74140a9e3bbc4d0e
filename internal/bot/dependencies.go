package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/event"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

// Service is what update handlers get to work with.
type Service interface {
	Engine() *moderation.Engine
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	Reply(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// Submit runs task on the lane owning chatID, after every task submitted for it before.
	Submit(ctx context.Context, chatID int64, task event.Task) error
}

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

type (
	adminChecker interface {
		IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	}

	messenger interface {
		Reply(ctx context.Context, chatID int64, messageID int, text string) error
		AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	}

	submitter interface {
		Submit(ctx context.Context, chatID int64, task event.Task) error
	}
)
