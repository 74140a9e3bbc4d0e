package moderation

import (
	"fmt"
	"time"
)

type EventKind int

const (
	EventMessage EventKind = iota
	EventJoin
	EventLeave
	EventForward
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventForward:
		return "forward"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an inbound chat event, already stripped of transport details.
type Event struct {
	ID        string
	ChatID    int64
	UserID    int64
	MessageID int
	Timestamp time.Time
	Kind      EventKind
	Text      string
	IsAdmin   bool
}

type ActionKind int

const (
	ActionDeleteMessage ActionKind = iota
	ActionRestrict
	ActionUnrestrict
	ActionBan
	ActionKick
	ActionUnban
	ActionSendNotice
)

func (k ActionKind) String() string {
	switch k {
	case ActionDeleteMessage:
		return "delete_message"
	case ActionRestrict:
		return "restrict"
	case ActionUnrestrict:
		return "unrestrict"
	case ActionBan:
		return "ban"
	case ActionKick:
		return "kick"
	case ActionUnban:
		return "unban"
	case ActionSendNotice:
		return "send_notice"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

type (
	// CaptchaPrompt asks the gateway to attach code buttons to a notice.
	CaptchaPrompt struct {
		UserID  int64
		Options []string
	}

	// Action is an outbound instruction for the messaging gateway.
	// A zero Until on Restrict or Ban means forever.
	Action struct {
		ChatID    int64
		UserID    int64
		MessageID int
		Kind      ActionKind
		Until     time.Time
		Text      string
		Captcha   *CaptchaPrompt
	}
)

type VerdictKind int

const (
	VerdictNone VerdictKind = iota
	VerdictDelete
	VerdictWarn
	VerdictMute
	VerdictBan
	VerdictKick
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictNone:
		return "none"
	case VerdictDelete:
		return "delete"
	case VerdictWarn:
		return "warn"
	case VerdictMute:
		return "mute"
	case VerdictBan:
		return "ban"
	case VerdictKick:
		return "kick"
	default:
		return fmt.Sprintf("verdict(%d)", int(k))
	}
}

// Verdict is the single decision taken for an event.
// Reason is a short machine code, Note is free text given by an admin.
type Verdict struct {
	Kind     VerdictKind
	Duration time.Duration
	Reason   string
	Note     string
}

const (
	ReasonFlood     = "flood"
	ReasonSpam      = "spam"
	ReasonBlacklist = "blacklist"
	ReasonFilter    = "filter"
	ReasonForward   = "forward"
	ReasonWarnings  = "warnings"
	ReasonCaptcha   = "captcha"
	ReasonAdmin     = "admin"
)
