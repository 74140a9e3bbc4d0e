package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/db"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

const defaultAuditLines = 10

type (
	// commandCall is one admin command invocation. target is set for commands that need one.
	commandCall struct {
		chatID    int64
		actorID   int64
		messageID int
		args      string
		target    moderation.Target
		targetTag string
	}

	command struct {
		needsTarget bool
		usage       string
		run         func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error)
	}
)

// Commands serves the admin command surface. Commands from non-admins pass through untouched.
type Commands struct {
	s        bot.Service
	registry map[string]command
}

func NewCommands(s bot.Service) *Commands {
	return &Commands{s: s, registry: commandRegistry()}
}

func (c *Commands) getLogEntry() *log.Entry {
	return log.WithField("object", "Commands")
}

func (c *Commands) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	switch {
	case chat == nil, user == nil, u.Message == nil:
		return true, nil
	case chat.IsPrivate(), chat.IsChannel(), !u.Message.IsCommand():
		return true, nil
	}
	msg := u.Message
	cmd, ok := c.registry[strings.ToLower(msg.Command())]
	if !ok {
		return true, nil
	}
	entry := c.getLogEntry().WithFields(log.Fields{"command": msg.Command(), "chat_id": chat.ID, "user_id": user.ID})

	if !c.isAdmin(ctx, chat.ID, msg) {
		entry.Trace("not admin")
		return true, nil
	}

	call := commandCall{
		chatID:    chat.ID,
		actorID:   user.ID,
		messageID: msg.MessageID,
		args:      strings.TrimSpace(msg.CommandArguments()),
	}
	if cmd.needsTarget {
		reply := msg.ReplyToMessage
		if reply == nil || reply.From == nil || reply.From.IsBot {
			return false, c.s.Reply(ctx, chat.ID, msg.MessageID, "Reply to a member's message: "+cmd.usage)
		}
		targetIsAdmin, err := c.s.IsAdmin(ctx, chat.ID, reply.From.ID)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant check target admin status")
		}
		call.target = moderation.Target{ChatID: chat.ID, UserID: reply.From.ID, IsAdmin: targetIsAdmin}
		call.targetTag = userTag(reply.From)
	}

	err = c.s.Submit(ctx, chat.ID, func(ctx context.Context) {
		text, err := cmd.run(ctx, c.s.Engine(), call)
		switch {
		case errors.Is(err, ngerrors.ErrPrivilegeConflict):
			text = "Admins are out of reach of this command."
		case errors.Is(err, ngerrors.ErrInvalidInput):
			text = "Usage: " + cmd.usage
		case tool.Try(err):
			entry.WithField("error", err.Error()).Error("command failed")
			text = "Command failed, see logs."
		}
		if text == "" {
			return
		}
		if err := c.s.Reply(ctx, call.chatID, call.messageID, text); err != nil {
			entry.WithField("error", err.Error()).Warn("cant reply")
		}
	})
	if err != nil {
		return false, errors.WithMessage(err, "cant submit command")
	}
	return false, nil
}

func (c *Commands) isAdmin(ctx context.Context, chatID int64, msg *api.Message) bool {
	if msg.SenderChat != nil {
		return msg.SenderChat.ID == chatID
	}
	if msg.From == nil {
		return false
	}
	isAdmin, err := c.s.IsAdmin(ctx, chatID, msg.From.ID)
	if err != nil {
		c.getLogEntry().WithField("error", err.Error()).Warn("cant check admin status")
		return false
	}
	return isAdmin
}

func userTag(user *api.User) string {
	name := bot.GetUN(user)
	if name == "" {
		name = strconv.FormatInt(user.ID, 10)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, html.EscapeString(name))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ngerrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func parseSwitch(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "yes", "enable", "1":
		return true, nil
	case "off", "no", "disable", "0":
		return false, nil
	}
	return false, invalid("expected on or off, got %q", args)
}

func parsePositive(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return 0, invalid("expected a positive number, got %q", args)
	}
	return n, nil
}

func toggle(usage, name string, set func(*db.Settings, bool)) command {
	return command{
		usage: usage,
		run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
			on, err := parseSwitch(c.args)
			if err != nil {
				return "", err
			}
			state := map[bool]string{true: "on", false: "off"}[on]
			if _, err := e.SetPolicy(ctx, c.chatID, c.actorID, name+"="+state, func(s *db.Settings) error {
				set(s, on)
				return nil
			}); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s is now %s.", name, state), nil
		},
	}
}

func number(usage, name string, parse func(string) (int, error), set func(*db.Settings, int)) command {
	return command{
		usage: usage,
		run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
			n, err := parse(c.args)
			if err != nil {
				return "", err
			}
			if _, err := e.SetPolicy(ctx, c.chatID, c.actorID, fmt.Sprintf("%s=%d", name, n), func(s *db.Settings) error {
				set(s, n)
				return nil
			}); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s set to %d.", name, n), nil
		},
	}
}

func parseSeconds(args string) (int, error) {
	if d, err := ParseDuration(args); err == nil && d >= time.Second {
		return int(d / time.Second), nil
	}
	return parsePositive(args)
}

func commandRegistry() map[string]command {
	warn := command{
		needsTarget: true,
		usage:       "/warn [reason]",
		run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
			_, err := e.Warn(ctx, c.actorID, c.target, c.args)
			return "", err
		},
	}
	filterAdd := command{
		usage: "/filter <word>",
		run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
			word := strings.ToLower(strings.TrimSpace(c.args))
			if word == "" {
				return "", invalid("empty word")
			}
			if _, err := e.SetPolicy(ctx, c.chatID, c.actorID, "filter+"+word, func(s *db.Settings) error {
				s.WordFilters.Add(word)
				return nil
			}); err != nil {
				return "", err
			}
			return fmt.Sprintf("Messages containing <code>%s</code> will be removed.", html.EscapeString(word)), nil
		},
	}
	filterRemove := command{
		usage: "/unfilter <word>",
		run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
			word := strings.ToLower(strings.TrimSpace(c.args))
			if word == "" {
				return "", invalid("empty word")
			}
			removed := false
			if _, err := e.SetPolicy(ctx, c.chatID, c.actorID, "filter-"+word, func(s *db.Settings) error {
				removed = s.WordFilters.Remove(word)
				return nil
			}); err != nil {
				return "", err
			}
			if !removed {
				return fmt.Sprintf("<code>%s</code> was not filtered.", html.EscapeString(word)), nil
			}
			return fmt.Sprintf("<code>%s</code> is no longer filtered.", html.EscapeString(word)), nil
		},
	}

	return map[string]command{
		"warn": warn,
		"rmwarn": {
			needsTarget: true,
			usage:       "/rmwarn",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				previous := e.ClearWarnings(ctx, c.actorID, c.target)
				return fmt.Sprintf("Warnings of %s cleared (had %d).", c.targetTag, previous), nil
			},
		},
		"warns": {
			needsTarget: true,
			usage:       "/warns",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				p := e.Policy(ctx, c.chatID)
				return fmt.Sprintf("%s has %d/%d warnings.", c.targetTag, e.Warnings(c.chatID, c.target.UserID), p.MaxWarnings), nil
			},
		},
		"mute": {
			needsTarget: true,
			usage:       "/mute [duration] [reason]",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				d, reason, _ := splitDuration(c.args)
				_, err := e.Mute(ctx, c.actorID, c.target, d, reason)
				return "", err
			},
		},
		"unmute": {
			needsTarget: true,
			usage:       "/unmute",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				e.Unmute(ctx, c.actorID, c.target)
				return fmt.Sprintf("%s can speak again.", c.targetTag), nil
			},
		},
		"ban": {
			needsTarget: true,
			usage:       "/ban [reason]",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				_, err := e.Ban(ctx, c.actorID, c.target, c.args)
				return "", err
			},
		},
		"kick": {
			needsTarget: true,
			usage:       "/kick [reason]",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				_, err := e.Kick(ctx, c.actorID, c.target, c.args)
				return "", err
			},
		},
		"unban": {
			needsTarget: true,
			usage:       "/unban",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				e.Unban(ctx, c.actorID, c.target)
				return fmt.Sprintf("%s may join again.", c.targetTag), nil
			},
		},
		"blacklist": {
			needsTarget: true,
			usage:       "/blacklist [reason]",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				if _, err := e.Blacklist(ctx, c.actorID, c.target, c.args); err != nil {
					return "", err
				}
				return fmt.Sprintf("%s is blacklisted.", c.targetTag), nil
			},
		},
		"unblacklist": {
			needsTarget: true,
			usage:       "/unblacklist",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				if _, ok := e.Unblacklist(ctx, c.actorID, c.target); !ok {
					return fmt.Sprintf("%s is not blacklisted.", c.targetTag), nil
				}
				return fmt.Sprintf("%s is removed from the blacklist.", c.targetTag), nil
			},
		},

		"antiflood": toggle("/antiflood on|off", "antiflood", func(s *db.Settings, on bool) { s.AntifloodEnabled = on }),
		"antispam":  toggle("/antispam on|off", "antispam", func(s *db.Settings, on bool) { s.AntispamEnabled = on }),
		"captcha":   toggle("/captcha on|off", "captcha", func(s *db.Settings, on bool) { s.CaptchaEnabled = on }),
		"forwardprotection": toggle("/forwardprotection on|off", "forward_protection", func(s *db.Settings, on bool) {
			s.ForwardProtectionEnabled = on
		}),

		"setflood":       number("/setflood <messages>", "flood_threshold", parsePositive, func(s *db.Settings, n int) { s.FloodThreshold = n }),
		"setfloodwindow": number("/setfloodwindow <seconds>", "flood_window_seconds", parseSeconds, func(s *db.Settings, n int) { s.FloodWindowSeconds = n }),
		"floodmute":      number("/floodmute <duration>", "flood_mute_seconds", parseSeconds, func(s *db.Settings, n int) { s.FloodMuteSeconds = n }),
		"setspam":        number("/setspam <score>", "spam_threshold", parsePositive, func(s *db.Settings, n int) { s.SpamThreshold = n }),
		"spamdecay":      number("/spamdecay <seconds>", "spam_decay_seconds", parseSeconds, func(s *db.Settings, n int) { s.SpamDecaySeconds = n }),
		"maxwarns":       number("/maxwarns <count>", "max_warnings", parsePositive, func(s *db.Settings, n int) { s.MaxWarnings = n }),
		"captchatimeout": number("/captchatimeout <seconds>", "captcha_timeout_seconds", parseSeconds, func(s *db.Settings, n int) { s.CaptchaTimeoutSeconds = n }),

		"spamaction": {
			usage: "/spamaction warn|mute|ban",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				action := moderation.SpamAction(strings.ToLower(strings.TrimSpace(c.args)))
				switch action {
				case moderation.SpamActionWarn, moderation.SpamActionMute, moderation.SpamActionBan:
				default:
					return "", invalid("unknown spam action %q", c.args)
				}
				if _, err := e.SetPolicy(ctx, c.chatID, c.actorID, "spam_action="+string(action), func(s *db.Settings) error {
					s.SpamAction = string(action)
					return nil
				}); err != nil {
					return "", err
				}
				return fmt.Sprintf("Spammers will get: %s.", action), nil
			},
		},

		"filter":    filterAdd,
		"addfilter": filterAdd,
		"unfilter":  filterRemove,
		"rmfilter":  filterRemove,
		"filters": {
			usage: "/filters",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				words := e.Policy(ctx, c.chatID).WordFilters
				if len(words) == 0 {
					return "No word filters.", nil
				}
				escaped := make([]string, len(words))
				for i, w := range words {
					escaped[i] = "<code>" + html.EscapeString(w) + "</code>"
				}
				return "Filtered words: " + strings.Join(escaped, ", "), nil
			},
		},

		"policy": {
			usage: "/policy",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				return formatPolicy(e.Policy(ctx, c.chatID)), nil
			},
		},
		"auditlog": {
			usage: "/auditlog [count]",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				limit := defaultAuditLines
				if c.args != "" {
					n, err := parsePositive(c.args)
					if err != nil {
						return "", err
					}
					limit = n
				}
				records, err := e.AuditHistory(ctx, c.chatID, limit)
				if err != nil {
					return "", err
				}
				return formatAudit(records), nil
			},
		},
		"purgechat": {
			usage: "/purgechat",
			run: func(ctx context.Context, e *moderation.Engine, c commandCall) (string, error) {
				if err := e.Purge(ctx, c.chatID, c.actorID); err != nil {
					return "", err
				}
				return "Moderation state of this chat was reset.", nil
			},
		},
	}
}

func formatPolicy(p moderation.Policy) string {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	lines := []string{
		"<b>Moderation policy</b>",
		fmt.Sprintf("antiflood: %s, %d messages per %s, mute %s", onOff(p.Antiflood), p.FloodThreshold, p.FloodWindow, p.FloodMuteDuration),
		fmt.Sprintf("antispam: %s, threshold %d, decay %s, action %s", onOff(p.Antispam), p.SpamThreshold, p.SpamDecay, p.SpamAction),
		fmt.Sprintf("captcha: %s, timeout %s", onOff(p.Captcha), p.CaptchaTimeout),
		fmt.Sprintf("forward protection: %s", onOff(p.ForwardProtection)),
		fmt.Sprintf("max warnings: %d", p.MaxWarnings),
		fmt.Sprintf("word filters: %d", len(p.WordFilters)),
	}
	return strings.Join(lines, "\n")
}

func formatAudit(records []db.AuditRecord) string {
	if len(records) == 0 {
		return "Audit log is empty."
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "<b>Recent moderation actions</b>")
	for _, rec := range records {
		actor := "auto"
		if rec.ActorID != 0 {
			actor = strconv.FormatInt(rec.ActorID, 10)
		}
		line := fmt.Sprintf("%s %s by %s", rec.Timestamp.UTC().Format("01-02 15:04"), rec.Action, actor)
		if rec.TargetID != 0 {
			line += fmt.Sprintf(" on %d", rec.TargetID)
		}
		if rec.Reason != "" {
			line += ": " + html.EscapeString(rec.Reason)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
