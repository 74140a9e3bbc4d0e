package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/iamwavecut/tool"
)

const (
	noticeWarn    = `{{ .mention }} has been warned ({{ .count }}/{{ .max }}){{ if .reason }}: {{ .reason }}{{ end }}`
	noticeMute    = `{{ .mention }} has been muted{{ if .until }} until {{ .until }}{{ end }}{{ if .reason }}: {{ .reason }}{{ end }}`
	noticeBan     = `{{ .mention }} has been banned{{ if .reason }}: {{ .reason }}{{ end }}`
	noticeKick    = `{{ .mention }} has been removed{{ if .reason }}: {{ .reason }}{{ end }}`
	noticeDelete  = `{{ .mention }}, your message was removed{{ if .reason }}: {{ .reason }}{{ end }}`
	noticeCaptcha = `Welcome, {{ .mention }}! Press the button with code <b>{{ .code }}</b> within {{ .timeout }} to start chatting.`
)

var reasonTexts = map[string]string{
	ReasonFlood:    "flooding",
	ReasonSpam:     "spam",
	ReasonFilter:   "forbidden word",
	ReasonWarnings: "too many warnings",
	ReasonCaptcha:  "captcha was not solved",
}

func mention(userID int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">user %d</a>`, userID, userID)
}

func humanReason(v Verdict) string {
	if v.Note != "" {
		return v.Note
	}
	return reasonTexts[v.Reason]
}

// noticeText returns an empty string for verdicts that stay silent.
func noticeText(userID int64, v Verdict, warnCount, maxWarnings int, until time.Time) string {
	if v.Reason == ReasonBlacklist || v.Reason == ReasonForward {
		return ""
	}
	if v.Kind == VerdictDelete && v.Reason == ReasonCaptcha {
		return ""
	}
	vars := map[string]any{
		"mention": mention(userID),
		"reason":  humanReason(v),
	}
	switch v.Kind {
	case VerdictWarn:
		vars["count"] = warnCount
		vars["max"] = maxWarnings
		return tool.ExecTemplate(noticeWarn, vars)
	case VerdictMute:
		if !until.IsZero() {
			vars["until"] = until.UTC().Format("2006-01-02 15:04 UTC")
		}
		return tool.ExecTemplate(noticeMute, vars)
	case VerdictBan:
		return tool.ExecTemplate(noticeBan, vars)
	case VerdictKick:
		return tool.ExecTemplate(noticeKick, vars)
	case VerdictDelete:
		return tool.ExecTemplate(noticeDelete, vars)
	default:
		return ""
	}
}

func captchaNotice(userID int64, code string, timeout time.Duration) string {
	return tool.ExecTemplate(noticeCaptcha, map[string]any{
		"mention": mention(userID),
		"code":    code,
		"timeout": humanDuration(timeout),
	})
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "forever"
	}
	s := d.Round(time.Second).String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
