package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SettingsOverrideInherit marks a numeric chat override that falls back to the process default.
const SettingsOverrideInherit = -1

type (
	// Settings are per-chat policy overrides.
	Settings struct {
		ID                       int64      `db:"id"`
		Title                    string     `db:"title"`
		FloodThreshold           int        `db:"flood_threshold"`
		FloodWindowSeconds       int        `db:"flood_window_seconds"`
		FloodMuteSeconds         int        `db:"flood_mute_seconds"`
		SpamThreshold            int        `db:"spam_threshold"`
		SpamDecaySeconds         int        `db:"spam_decay_seconds"`
		SpamAction               string     `db:"spam_action"`
		MaxWarnings              int        `db:"max_warnings"`
		CaptchaTimeoutSeconds    int        `db:"captcha_timeout_seconds"`
		AntifloodEnabled         bool       `db:"antiflood_enabled"`
		AntispamEnabled          bool       `db:"antispam_enabled"`
		CaptchaEnabled           bool       `db:"captcha_enabled"`
		ForwardProtectionEnabled bool       `db:"forward_protection_enabled"`
		WordFilters              StringList `db:"word_filters"`
		UpdatedAt                time.Time  `db:"updated_at"`
	}

	// StringList is stored as a JSON array.
	StringList []string

	AuditRecord struct {
		ID        string    `db:"id" json:"id"`
		ChatID    int64     `db:"chat_id" json:"-"`
		Timestamp time.Time `db:"ts" json:"ts"`
		Action    string    `db:"action" json:"action"`
		ActorID   int64     `db:"actor_id" json:"actor_id"`
		TargetID  int64     `db:"target_id" json:"target_id"`
		Reason    string    `db:"reason" json:"reason,omitempty"`
	}

	SpamScoreSnapshot struct {
		Score    int       `json:"score"`
		ScoredAt time.Time `json:"scored_at"`
	}

	ChallengeSnapshot struct {
		Code      string    `json:"code"`
		IssuedAt  time.Time `json:"issued_at"`
		ExpiresAt time.Time `json:"expires_at"`
		Attempts  int       `json:"attempts,omitempty"`
	}

	// ChatSnapshot is the persisted document of one chat. Flood windows are not part of it.
	ChatSnapshot struct {
		ChatID     int64                       `json:"chat_id"`
		TakenAt    time.Time                   `json:"taken_at"`
		SpamScores map[int64]SpamScoreSnapshot `json:"spam_scores,omitempty"`
		Warnings   map[int64]int               `json:"warnings,omitempty"`
		Challenges map[int64]ChallengeSnapshot `json:"challenges,omitempty"`
		Blacklist  []int64                     `json:"blacklist,omitempty"`
		Audit      []AuditRecord               `json:"audit,omitempty"`
	}
)

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(v any) error {
	switch data := v.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(data), (*[]string)(l))
	case []byte:
		return json.Unmarshal(data, (*[]string)(l))
	default:
		return fmt.Errorf("cannot scan type %T into StringList", v)
	}
}

// Add inserts a normalized word and reports whether the list changed.
func (l *StringList) Add(word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || slices.Contains(*l, word) {
		return false
	}
	*l = append(*l, word)
	return true
}

func (l *StringList) Remove(word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	idx := slices.Index(*l, word)
	if idx < 0 {
		return false
	}
	*l = slices.Delete(*l, idx, idx+1)
	return true
}

// IsEmpty reports whether the snapshot carries no state worth persisting.
func (s *ChatSnapshot) IsEmpty() bool {
	return s == nil ||
		len(s.SpamScores) == 0 && len(s.Warnings) == 0 && len(s.Challenges) == 0 &&
			len(s.Blacklist) == 0 && len(s.Audit) == 0
}
