package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/policy/permissions"
)

// Guard feeds group traffic into the moderation engine and answers captcha buttons.
type Guard struct {
	s bot.Service
}

func NewGuard(s bot.Service) *Guard {
	return &Guard{s: s}
}

func (g *Guard) getLogEntry() *log.Entry {
	return log.WithField("object", "Guard")
}

func (g *Guard) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil {
		return true, nil
	}

	switch {
	case u.CallbackQuery != nil:
		userID, code, ok := telegram.ParseCaptchaCallback(u.CallbackQuery.Data)
		if !ok {
			return true, nil
		}
		return false, g.handleCaptchaAnswer(ctx, u.CallbackQuery, chat, userID, code)
	case u.MyChatMember != nil:
		g.checkOwnRights(u.MyChatMember)
		return true, nil
	case u.Message == nil, chat.IsPrivate(), chat.IsChannel():
		return true, nil
	}

	msg := u.Message
	anonymousAdmin := msg.SenderChat != nil && msg.SenderChat.ID == chat.ID
	for _, ev := range EventsFromMessage(u.UpdateID, msg) {
		ev := ev
		if err := g.s.Submit(ctx, chat.ID, func(ctx context.Context) {
			g.moderate(ctx, ev, anonymousAdmin)
		}); err != nil {
			return true, errors.WithMessage(err, "cant submit event")
		}
	}
	return true, nil
}

// EventsFromMessage translates a group message into engine events.
// Messages posted on behalf of other chats and automatic channel forwards yield none.
func EventsFromMessage(updateID int, msg *api.Message) []moderation.Event {
	if msg == nil {
		return nil
	}
	id := strconv.Itoa(updateID)
	at := time.Unix(int64(msg.Date), 0)

	if len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil {
		var events []moderation.Event
		for _, member := range msg.NewChatMembers {
			if member.IsBot {
				continue
			}
			events = append(events, moderation.Event{
				ID:        fmt.Sprintf("%s:join:%d", id, member.ID),
				ChatID:    msg.Chat.ID,
				UserID:    member.ID,
				Timestamp: at,
				Kind:      moderation.EventJoin,
			})
		}
		if left := msg.LeftChatMember; left != nil && !left.IsBot {
			events = append(events, moderation.Event{
				ID:        fmt.Sprintf("%s:leave:%d", id, left.ID),
				ChatID:    msg.Chat.ID,
				UserID:    left.ID,
				Timestamp: at,
				Kind:      moderation.EventLeave,
			})
		}
		return events
	}

	switch {
	case msg.From == nil, msg.IsAutomaticForward:
		return nil
	case msg.SenderChat != nil && msg.SenderChat.ID != msg.Chat.ID:
		return nil
	}

	kind := moderation.EventMessage
	if msg.ForwardOrigin != nil {
		kind = moderation.EventForward
	}
	return []moderation.Event{{
		ID:        id,
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
		Timestamp: at,
		Kind:      kind,
		Text:      bot.MessageText(msg),
	}}
}

func (g *Guard) moderate(ctx context.Context, ev moderation.Event, anonymousAdmin bool) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id": ev.ChatID,
		"user_id": ev.UserID,
		"kind":    ev.Kind.String(),
	})

	switch {
	case anonymousAdmin:
		ev.IsAdmin = true
	case ev.Kind != moderation.EventLeave:
		isAdmin, err := g.s.IsAdmin(ctx, ev.ChatID, ev.UserID)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant check admin status")
		}
		ev.IsAdmin = isAdmin
	}

	out, err := g.s.Engine().Handle(ctx, ev)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant handle event")
		return
	}
	if out.Verdict.Kind != moderation.VerdictNone {
		entry.WithFields(log.Fields{
			"verdict": out.Verdict.Kind.String(),
			"reason":  out.Verdict.Reason,
		}).Info("verdict taken")
	}
}

func (g *Guard) handleCaptchaAnswer(ctx context.Context, cq *api.CallbackQuery, chat *api.Chat, userID int64, code string) error {
	entry := g.getLogEntry().WithFields(log.Fields{"method": "handleCaptchaAnswer", "chat_id": chat.ID, "user_id": userID})

	if cq.From == nil || cq.From.ID != userID {
		if err := g.s.AnswerCallback(ctx, cq.ID, "This challenge is not for you", false); err != nil {
			entry.WithField("error", err.Error()).Warn("cant answer callback query")
		}
		return nil
	}
	promptID := 0
	if cq.Message != nil {
		promptID = cq.Message.MessageID
	}
	answeredAt := time.Now()

	return g.s.Submit(ctx, chat.ID, func(ctx context.Context) {
		result, _ := g.s.Engine().VerifyCaptcha(ctx, chat.ID, userID, code, promptID, answeredAt)
		text, alert := captchaAnswerText(result)
		if err := g.s.AnswerCallback(ctx, cq.ID, text, alert); err != nil {
			entry.WithField("error", err.Error()).Warn("cant answer callback query")
		}
		entry.WithField("result", result.Reason.String()).Debug("captcha answered")
	})
}

func captchaAnswerText(result moderation.VerifyResult) (string, bool) {
	switch result.Reason {
	case moderation.VerifyOK:
		return "Welcome!", false
	case moderation.VerifyWrongCode:
		return "Wrong code, try again", true
	case moderation.VerifyExpired:
		return "Too late, the challenge has expired", true
	default:
		return "Nothing to solve here", false
	}
}

func (g *Guard) checkOwnRights(update *api.ChatMemberUpdated) {
	member := update.NewChatMember
	if member.User == nil || !member.User.IsBot {
		return
	}
	entry := g.getLogEntry().WithFields(log.Fields{"chat_id": update.Chat.ID, "status": member.Status})
	switch {
	case member.HasLeft() || member.WasKicked():
		entry.Info("removed from chat")
	case !permissions.CanEnforce(&member):
		entry.Warn("missing restrict or delete rights, verdicts will fail")
	default:
		entry.Info("ready to moderate")
	}
}
