package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadFromAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN": "123:abc",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Moderation.FloodThreshold != 5 || cfg.Moderation.FloodWindow != 5*time.Second {
		t.Fatalf("unexpected flood defaults: %+v", cfg.Moderation)
	}
	if cfg.Moderation.FloodMuteDuration != 5*time.Minute {
		t.Fatalf("unexpected flood mute default: %s", cfg.Moderation.FloodMuteDuration)
	}
	if cfg.Moderation.SpamThreshold != 3 || cfg.Moderation.SpamDecay != 30*time.Second {
		t.Fatalf("unexpected spam defaults: %+v", cfg.Moderation)
	}
	if cfg.Moderation.CaptchaTimeout != time.Minute {
		t.Fatalf("unexpected captcha timeout default: %s", cfg.Moderation.CaptchaTimeout)
	}
	if cfg.Moderation.MaxWarnings != 3 {
		t.Fatalf("unexpected max warnings: %d", cfg.Moderation.MaxWarnings)
	}
	if cfg.Runtime.Lanes != 8 || cfg.Store.SnapshotBackend != "sqlite" {
		t.Fatalf("unexpected runtime/store defaults: %+v %+v", cfg.Runtime, cfg.Store)
	}
}

func TestLoadFromRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestLoadFromClampsLanes(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN": "123:abc",
		"NG_LANES": "0",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Runtime.Lanes != 1 {
		t.Fatalf("expected lanes clamped to 1, got %d", cfg.Runtime.Lanes)
	}
}

func TestParsePolicyFile(t *testing.T) {
	t.Parallel()

	data := []byte(`
chats:
  - chat_id: -1001
    flood_threshold: 10
    antispam: false
    spam_action: mute
    word_filters: [casino, "free money"]
`)
	pf, err := ParsePolicyFile(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pf.Chats) != 1 {
		t.Fatalf("expected one chat, got %d", len(pf.Chats))
	}
	chat := pf.Chats[0]
	if chat.FloodThreshold == nil || *chat.FloodThreshold != 10 {
		t.Fatalf("unexpected flood threshold: %v", chat.FloodThreshold)
	}
	if chat.Antispam == nil || *chat.Antispam {
		t.Fatalf("expected antispam false")
	}
	if chat.MaxWarnings != nil {
		t.Fatalf("expected max warnings to inherit")
	}
	if len(chat.WordFilters) != 2 {
		t.Fatalf("unexpected filters: %v", chat.WordFilters)
	}
}

func TestParsePolicyFileRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing chat id": "chats:\n  - flood_threshold: 3\n",
		"bad action":      "chats:\n  - chat_id: 1\n    spam_action: explode\n",
		"unknown field":   "chats:\n  - chat_id: 1\n    colour: red\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParsePolicyFile([]byte(data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
