package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type (
	// PolicyFile seeds per-chat overrides at startup.
	PolicyFile struct {
		Chats []ChatPolicy `yaml:"chats"`
	}

	// ChatPolicy leaves a field nil to inherit the process default.
	ChatPolicy struct {
		ChatID                int64    `yaml:"chat_id"`
		FloodThreshold        *int     `yaml:"flood_threshold"`
		FloodWindowSeconds    *int     `yaml:"flood_window_seconds"`
		FloodMuteSeconds      *int     `yaml:"flood_mute_seconds"`
		SpamThreshold         *int     `yaml:"spam_threshold"`
		SpamDecaySeconds      *int     `yaml:"spam_decay_seconds"`
		SpamAction            string   `yaml:"spam_action"`
		MaxWarnings           *int     `yaml:"max_warnings"`
		CaptchaTimeoutSeconds *int     `yaml:"captcha_timeout_seconds"`
		Antiflood             *bool    `yaml:"antiflood"`
		Antispam              *bool    `yaml:"antispam"`
		Captcha               *bool    `yaml:"captcha"`
		ForwardProtection     *bool    `yaml:"forward_protection"`
		WordFilters           []string `yaml:"word_filters"`
	}
)

func LoadPolicyFile(path string) (*PolicyFile, error) {
	if path == "" {
		return &PolicyFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicyFile(data)
}

func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	pf := &PolicyFile{}
	if err := yaml.UnmarshalStrict(data, pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	for i, chat := range pf.Chats {
		if chat.ChatID == 0 {
			return nil, fmt.Errorf("policy file entry %d: chat_id is required", i)
		}
		switch chat.SpamAction {
		case "", "warn", "mute", "ban":
		default:
			return nil, fmt.Errorf("policy file entry %d: unknown spam_action %q", i, chat.SpamAction)
		}
	}
	return pf, nil
}
