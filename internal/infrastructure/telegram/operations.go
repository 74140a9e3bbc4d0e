package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/moderation"
)

const captchaCallbackPrefix = "captcha"

type requester interface {
	Request(c api.Chattable) (*api.APIResponse, error)
}

// CaptchaCallbackData encodes a captcha button press.
func CaptchaCallbackData(userID int64, code string) string {
	return fmt.Sprintf("%s;%d;%s", captchaCallbackPrefix, userID, code)
}

// ParseCaptchaCallback reports ok=false for callbacks not produced by CaptchaCallbackData.
func ParseCaptchaCallback(data string) (userID int64, code string, ok bool) {
	parts := strings.Split(data, ";")
	if len(parts) != 3 || parts[0] != captchaCallbackPrefix || parts[2] == "" {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, parts[2], true
}

func memberConfig(action moderation.Action) api.ChatMemberConfig {
	return api.ChatMemberConfig{
		ChatConfig: api.ChatConfig{ChatID: action.ChatID},
		UserID:     action.UserID,
	}
}

func unixOrZero(action moderation.Action) int64 {
	if action.Until.IsZero() {
		return 0
	}
	return action.Until.Unix()
}

// buildRequests maps an action to the Bot API calls that carry it out, in order.
func buildRequests(action moderation.Action) ([]api.Chattable, error) {
	switch action.Kind {
	case moderation.ActionDeleteMessage:
		if action.MessageID == 0 {
			return nil, fmt.Errorf("delete without message id in chat %d", action.ChatID)
		}
		return []api.Chattable{api.NewDeleteMessage(action.ChatID, action.MessageID)}, nil

	case moderation.ActionRestrict:
		return []api.Chattable{api.RestrictChatMemberConfig{
			ChatMemberConfig:              memberConfig(action),
			Permissions:                   &api.ChatPermissions{},
			UntilDate:                     unixOrZero(action),
			UseIndependentChatPermissions: true,
		}}, nil

	case moderation.ActionUnrestrict:
		return []api.Chattable{api.RestrictChatMemberConfig{
			ChatMemberConfig: memberConfig(action),
			Permissions: &api.ChatPermissions{
				CanSendMessages:       true,
				CanSendAudios:         true,
				CanSendDocuments:      true,
				CanSendPhotos:         true,
				CanSendVideos:         true,
				CanSendVideoNotes:     true,
				CanSendVoiceNotes:     true,
				CanSendPolls:          true,
				CanSendOtherMessages:  true,
				CanAddWebPagePreviews: true,
				CanInviteUsers:        true,
			},
		}}, nil

	case moderation.ActionBan:
		return []api.Chattable{api.BanChatMemberConfig{
			ChatMemberConfig: memberConfig(action),
			UntilDate:        unixOrZero(action),
			RevokeMessages:   true,
		}}, nil

	case moderation.ActionKick:
		ban := api.BanChatMemberConfig{
			ChatMemberConfig: memberConfig(action),
			UntilDate:        unixOrZero(action),
		}
		if action.Until.IsZero() {
			return []api.Chattable{ban, api.UnbanChatMemberConfig{
				ChatMemberConfig: memberConfig(action),
				OnlyIfBanned:     true,
			}}, nil
		}
		return []api.Chattable{ban}, nil

	case moderation.ActionUnban:
		return []api.Chattable{api.UnbanChatMemberConfig{
			ChatMemberConfig: memberConfig(action),
			OnlyIfBanned:     true,
		}}, nil

	case moderation.ActionSendNotice:
		if action.Text == "" {
			return nil, fmt.Errorf("empty notice for chat %d", action.ChatID)
		}
		msg := api.NewMessage(action.ChatID, action.Text)
		msg.ParseMode = api.ModeHTML
		msg.LinkPreviewOptions.IsDisabled = true
		if action.Captcha != nil && len(action.Captcha.Options) > 0 {
			row := make([]api.InlineKeyboardButton, 0, len(action.Captcha.Options))
			for _, option := range action.Captcha.Options {
				row = append(row, api.NewInlineKeyboardButtonData(option, CaptchaCallbackData(action.Captcha.UserID, option)))
			}
			msg.ReplyMarkup = api.NewInlineKeyboardMarkup(row)
		}
		return []api.Chattable{msg}, nil
	}
	return nil, fmt.Errorf("unsupported action %s", action.Kind)
}

// Operations performs synchronous calls for command replies and callback answers.
type Operations struct {
	client requester
}

func NewOperations(client requester) *Operations {
	return &Operations{client: client}
}

// Reply sends an HTML text as a reply to messageID.
func (o *Operations) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.LinkPreviewOptions.IsDisabled = true
	if messageID != 0 {
		msg.ReplyParameters = api.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true}
	}
	if _, err := o.client.Request(msg); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

func (o *Operations) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := api.NewCallback(callbackID, text)
	if alert {
		cb = api.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := o.client.Request(cb); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}
