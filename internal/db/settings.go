package db

import (
	"errors"

	"github.com/iamwavecut/ngwarden/internal/config"
)

var ErrNotFound = errors.New("not found")

// DefaultSettings returns settings that inherit every numeric knob.
func DefaultSettings(chatID int64) *Settings {
	return &Settings{
		ID:                       chatID,
		FloodThreshold:           SettingsOverrideInherit,
		FloodWindowSeconds:       SettingsOverrideInherit,
		FloodMuteSeconds:         SettingsOverrideInherit,
		SpamThreshold:            SettingsOverrideInherit,
		SpamDecaySeconds:         SettingsOverrideInherit,
		MaxWarnings:              SettingsOverrideInherit,
		CaptchaTimeoutSeconds:    SettingsOverrideInherit,
		AntifloodEnabled:         true,
		AntispamEnabled:          true,
		CaptchaEnabled:           false,
		ForwardProtectionEnabled: false,
		WordFilters:              StringList{},
	}
}

// ApplyPolicy copies the fields set in a policy file entry.
func (s *Settings) ApplyPolicy(p config.ChatPolicy) {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&s.FloodThreshold, p.FloodThreshold)
	setInt(&s.FloodWindowSeconds, p.FloodWindowSeconds)
	setInt(&s.FloodMuteSeconds, p.FloodMuteSeconds)
	setInt(&s.SpamThreshold, p.SpamThreshold)
	setInt(&s.SpamDecaySeconds, p.SpamDecaySeconds)
	setInt(&s.MaxWarnings, p.MaxWarnings)
	setInt(&s.CaptchaTimeoutSeconds, p.CaptchaTimeoutSeconds)
	setBool(&s.AntifloodEnabled, p.Antiflood)
	setBool(&s.AntispamEnabled, p.Antispam)
	setBool(&s.CaptchaEnabled, p.Captcha)
	setBool(&s.ForwardProtectionEnabled, p.ForwardProtection)
	if p.SpamAction != "" {
		s.SpamAction = p.SpamAction
	}
	for _, word := range p.WordFilters {
		s.WordFilters.Add(word)
	}
}
