package moderation

import (
	"context"
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/db"
)

type SpamAction string

const (
	SpamActionWarn SpamAction = "warn"
	SpamActionMute SpamAction = "mute"
	SpamActionBan  SpamAction = "ban"
)

// Policy is the effective configuration of one chat.
type Policy struct {
	FloodThreshold      int
	FloodWindow         time.Duration
	FloodMuteDuration   time.Duration
	SpamThreshold       int
	SpamDecay           time.Duration
	SpamAction          SpamAction
	MaxWarnings         int
	CaptchaTimeout      time.Duration
	CaptchaRejectPeriod time.Duration
	Antiflood           bool
	Antispam            bool
	Captcha             bool
	ForwardProtection   bool
	WordFilters         []string
}

func normalizePolicy(p Policy) Policy {
	if p.FloodThreshold < 1 {
		p.FloodThreshold = 5
	}
	if p.FloodWindow <= 0 {
		p.FloodWindow = 5 * time.Second
	}
	if p.FloodMuteDuration < 0 {
		p.FloodMuteDuration = 5 * time.Minute
	}
	if p.SpamThreshold < 1 {
		p.SpamThreshold = 3
	}
	if p.SpamDecay <= 0 {
		p.SpamDecay = 30 * time.Second
	}
	switch p.SpamAction {
	case SpamActionWarn, SpamActionMute, SpamActionBan:
	default:
		p.SpamAction = SpamActionWarn
	}
	if p.MaxWarnings < 1 {
		p.MaxWarnings = 3
	}
	if p.CaptchaTimeout <= 0 {
		p.CaptchaTimeout = time.Minute
	}
	if p.CaptchaRejectPeriod <= 0 {
		p.CaptchaRejectPeriod = time.Minute
	}
	return p
}

func ResolvePolicy(base config.Moderation, settings *db.Settings) Policy {
	p := Policy{
		FloodThreshold:      base.FloodThreshold,
		FloodWindow:         base.FloodWindow,
		FloodMuteDuration:   base.FloodMuteDuration,
		SpamThreshold:       base.SpamThreshold,
		SpamDecay:           base.SpamDecay,
		SpamAction:          SpamAction(base.SpamAction),
		MaxWarnings:         base.MaxWarnings,
		CaptchaTimeout:      base.CaptchaTimeout,
		CaptchaRejectPeriod: base.CaptchaRejectPeriod,
	}
	if settings == nil {
		settings = db.DefaultSettings(0)
	}
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }
	if settings.FloodThreshold != db.SettingsOverrideInherit {
		p.FloodThreshold = settings.FloodThreshold
	}
	if settings.FloodWindowSeconds != db.SettingsOverrideInherit {
		p.FloodWindow = seconds(settings.FloodWindowSeconds)
	}
	if settings.FloodMuteSeconds != db.SettingsOverrideInherit {
		p.FloodMuteDuration = seconds(settings.FloodMuteSeconds)
	}
	if settings.SpamThreshold != db.SettingsOverrideInherit {
		p.SpamThreshold = settings.SpamThreshold
	}
	if settings.SpamDecaySeconds != db.SettingsOverrideInherit {
		p.SpamDecay = seconds(settings.SpamDecaySeconds)
	}
	if settings.SpamAction != "" {
		p.SpamAction = SpamAction(settings.SpamAction)
	}
	if settings.MaxWarnings != db.SettingsOverrideInherit {
		p.MaxWarnings = settings.MaxWarnings
	}
	if settings.CaptchaTimeoutSeconds != db.SettingsOverrideInherit {
		p.CaptchaTimeout = seconds(settings.CaptchaTimeoutSeconds)
	}
	p.Antiflood = settings.AntifloodEnabled
	p.Antispam = settings.AntispamEnabled
	p.Captcha = settings.CaptchaEnabled
	p.ForwardProtection = settings.ForwardProtectionEnabled
	p.WordFilters = slices.Clone(settings.WordFilters)

	return normalizePolicy(p)
}

type settingsStore interface {
	GetSettings(ctx context.Context, chatID int64) (*db.Settings, error)
	SetSettings(ctx context.Context, settings *db.Settings) error
}

// PolicyBook caches chat settings and resolves them against process defaults.
type PolicyBook struct {
	store settingsStore
	base  config.Moderation
	cache *xsync.MapOf[int64, *db.Settings]
}

func NewPolicyBook(store settingsStore, base config.Moderation) *PolicyBook {
	return &PolicyBook{
		store: store,
		base:  base,
		cache: xsync.NewMapOf[int64, *db.Settings](),
	}
}

// Settings returns a private copy of the chat settings, defaults when none are stored.
func (b *PolicyBook) Settings(ctx context.Context, chatID int64) (*db.Settings, error) {
	if cached, ok := b.cache.Load(chatID); ok {
		return cloneSettings(cached), nil
	}
	settings, err := b.store.GetSettings(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = db.DefaultSettings(chatID)
	}
	b.cache.Store(chatID, settings)
	return cloneSettings(settings), nil
}

// Policy never fails: on storage errors the defaults apply.
func (b *PolicyBook) Policy(ctx context.Context, chatID int64) (Policy, error) {
	settings, err := b.Settings(ctx, chatID)
	if err != nil {
		return ResolvePolicy(b.base, nil), err
	}
	return ResolvePolicy(b.base, settings), nil
}

func (b *PolicyBook) Update(ctx context.Context, chatID int64, fn func(*db.Settings) error) (*db.Settings, error) {
	settings, err := b.Settings(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := fn(settings); err != nil {
		return nil, err
	}
	settings.ID = chatID
	if err := b.store.SetSettings(ctx, settings); err != nil {
		b.cache.Delete(chatID)
		return nil, err
	}
	b.cache.Store(chatID, cloneSettings(settings))
	return settings, nil
}

func (b *PolicyBook) Forget(chatID int64) {
	b.cache.Delete(chatID)
}

func cloneSettings(s *db.Settings) *db.Settings {
	out := *s
	out.WordFilters = slices.Clone(s.WordFilters)
	if out.WordFilters == nil {
		out.WordFilters = db.StringList{}
	}
	return &out
}
