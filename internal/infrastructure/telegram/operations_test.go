package telegram

import (
	"strings"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/moderation"
)

func paramsOf(t *testing.T, c api.Chattable) api.Params {
	t.Helper()
	params, err := c.Params()
	if err != nil {
		t.Fatalf("params of %s: %v", c.Method(), err)
	}
	return params
}

func TestBuildRequests(t *testing.T) {
	t.Parallel()

	until := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		action  moderation.Action
		methods []string
		check   func(t *testing.T, reqs []api.Chattable)
	}{
		{
			name:    "delete",
			action:  moderation.Action{ChatID: -1, UserID: 7, MessageID: 42, Kind: moderation.ActionDeleteMessage},
			methods: []string{"deleteMessage"},
			check: func(t *testing.T, reqs []api.Chattable) {
				if got := paramsOf(t, reqs[0])["message_id"]; got != "42" {
					t.Fatalf("unexpected message id %q", got)
				}
			},
		},
		{
			name:    "restrict until",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionRestrict, Until: until},
			methods: []string{"restrictChatMember"},
			check: func(t *testing.T, reqs []api.Chattable) {
				params := paramsOf(t, reqs[0])
				if params["user_id"] != "7" || params["until_date"] != "1704110400" {
					t.Fatalf("unexpected params %v", params)
				}
				if strings.Contains(params["permissions"], "true") {
					t.Fatalf("restriction must grant nothing, got %s", params["permissions"])
				}
			},
		},
		{
			name:    "restrict forever",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionRestrict},
			methods: []string{"restrictChatMember"},
			check: func(t *testing.T, reqs []api.Chattable) {
				if until, ok := paramsOf(t, reqs[0])["until_date"]; ok && until != "0" {
					t.Fatalf("forever restriction must not carry until, got %s", until)
				}
			},
		},
		{
			name:    "unrestrict",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionUnrestrict},
			methods: []string{"restrictChatMember"},
			check: func(t *testing.T, reqs []api.Chattable) {
				if !strings.Contains(paramsOf(t, reqs[0])["permissions"], `"can_send_messages":true`) {
					t.Fatalf("unrestrict must allow messages")
				}
			},
		},
		{
			name:    "ban",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionBan},
			methods: []string{"banChatMember"},
		},
		{
			name:    "kick with reject period",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionKick, Until: until},
			methods: []string{"banChatMember"},
			check: func(t *testing.T, reqs []api.Chattable) {
				if got := paramsOf(t, reqs[0])["until_date"]; got != "1704110400" {
					t.Fatalf("unexpected until %q", got)
				}
			},
		},
		{
			name:    "kick without reject period",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionKick},
			methods: []string{"banChatMember", "unbanChatMember"},
		},
		{
			name:    "unban",
			action:  moderation.Action{ChatID: -1, UserID: 7, Kind: moderation.ActionUnban},
			methods: []string{"unbanChatMember"},
			check: func(t *testing.T, reqs []api.Chattable) {
				if got := paramsOf(t, reqs[0])["only_if_banned"]; got != "true" {
					t.Fatalf("unban must not kick members, got %q", got)
				}
			},
		},
		{
			name: "captcha notice",
			action: moderation.Action{
				ChatID:  -1,
				UserID:  7,
				Kind:    moderation.ActionSendNotice,
				Text:    "press <b>1234</b>",
				Captcha: &moderation.CaptchaPrompt{UserID: 7, Options: []string{"5678", "1234"}},
			},
			methods: []string{"sendMessage"},
			check: func(t *testing.T, reqs []api.Chattable) {
				params := paramsOf(t, reqs[0])
				if params["parse_mode"] != api.ModeHTML {
					t.Fatalf("notices are html, got %q", params["parse_mode"])
				}
				if !strings.Contains(params["reply_markup"], "captcha;7;1234") || !strings.Contains(params["reply_markup"], "captcha;7;5678") {
					t.Fatalf("buttons must carry callbacks, got %s", params["reply_markup"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reqs, err := buildRequests(tt.action)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if len(reqs) != len(tt.methods) {
				t.Fatalf("expected %d requests, got %d", len(tt.methods), len(reqs))
			}
			for i, method := range tt.methods {
				if reqs[i].Method() != method {
					t.Fatalf("request %d: got %s want %s", i, reqs[i].Method(), method)
				}
				if chatID := paramsOf(t, reqs[i])["chat_id"]; chatID != "-1" {
					t.Fatalf("request %d: unexpected chat id %q", i, chatID)
				}
			}
			if tt.check != nil {
				tt.check(t, reqs)
			}
		})
	}
}

func TestBuildRequestsRejectsIncompleteActions(t *testing.T) {
	t.Parallel()

	for _, action := range []moderation.Action{
		{ChatID: -1, Kind: moderation.ActionDeleteMessage},
		{ChatID: -1, Kind: moderation.ActionSendNotice},
		{ChatID: -1, Kind: moderation.ActionKind(99)},
	} {
		if _, err := buildRequests(action); err == nil {
			t.Fatalf("expected error for %+v", action)
		}
	}
}

func TestCaptchaCallbackRoundTrip(t *testing.T) {
	t.Parallel()

	userID, code, ok := ParseCaptchaCallback(CaptchaCallbackData(7, "1234"))
	if !ok || userID != 7 || code != "1234" {
		t.Fatalf("unexpected parse %d %q %v", userID, code, ok)
	}
	for _, data := range []string{"", "captcha;7", "spam_vote:1:0", "captcha;x;1234", "captcha;7;"} {
		if _, _, ok := ParseCaptchaCallback(data); ok {
			t.Fatalf("expected %q to be rejected", data)
		}
	}
}
