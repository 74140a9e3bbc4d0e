package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		EnabledHandlers  []string `env:"HANDLERS,default=guard,commands"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.ngwarden"`
		PolicyFile       string   `env:"POLICY_FILE"`
		Moderation       Moderation
		Store            Store
		Runtime          Runtime
		Gateway          Gateway
		Observability    Observability
	}

	// Moderation holds process-wide defaults, chats override them in settings.
	Moderation struct {
		FloodThreshold      int           `env:"FLOOD_THRESHOLD,default=5"`
		FloodWindow         time.Duration `env:"FLOOD_WINDOW,default=5s"`
		FloodMuteDuration   time.Duration `env:"FLOOD_MUTE_DURATION,default=5m"`
		SpamThreshold       int           `env:"SPAM_THRESHOLD,default=3"`
		SpamDecay           time.Duration `env:"SPAM_DECAY,default=30s"`
		SpamAction          string        `env:"SPAM_ACTION,default=warn"`
		MaxWarnings         int           `env:"MAX_WARNINGS,default=3"`
		CaptchaTimeout      time.Duration `env:"CAPTCHA_TIMEOUT,default=60s"`
		CaptchaRejectPeriod time.Duration `env:"CAPTCHA_REJECT_PERIOD,default=1m"`
		AuditTailSize       int           `env:"AUDIT_TAIL_SIZE,default=50"`
	}

	Store struct {
		SQLiteFile      string        `env:"SQLITE_FILE,default=ngwarden.db"`
		SnapshotBackend string        `env:"SNAPSHOT_BACKEND,default=sqlite"`
		RedisURL        string        `env:"REDIS_URL,default=redis://localhost:6379/0"`
		FlushInterval   time.Duration `env:"FLUSH_INTERVAL,default=30s"`
	}

	Runtime struct {
		Lanes         int           `env:"LANES,default=8"`
		LaneQueueSize int           `env:"LANE_QUEUE_SIZE,default=256"`
		SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=5s"`
		DedupeSize    int           `env:"DEDUPE_SIZE,default=4096"`
	}

	Gateway struct {
		RetryMax      int           `env:"GATEWAY_RETRY_MAX,default=3"`
		RetryWaitMin  time.Duration `env:"GATEWAY_RETRY_WAIT_MIN,default=500ms"`
		RetryWaitMax  time.Duration `env:"GATEWAY_RETRY_WAIT_MAX,default=5s"`
		RatePerSecond float64       `env:"GATEWAY_RATE,default=25"`
		RateBurst     int           `env:"GATEWAY_BURST,default=5"`
		OutboxSize    int           `env:"GATEWAY_OUTBOX_SIZE,default=1024"`
		AdminCacheTTL time.Duration `env:"GATEWAY_ADMIN_CACHE_TTL,default=5m"`
	}

	Observability struct {
		MetricsAddr     string `env:"METRICS_ADDR,default=:2112"`
		AuditJournal    string `env:"AUDIT_JOURNAL,default=audit.jsonl"`
		TracingDisabled bool   `env:"TRACING_DISABLED,default=false"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// LoadFrom resolves the NG_ prefixed variables through the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if cfg.Runtime.Lanes < 1 {
		cfg.Runtime.Lanes = 1
	}
	return cfg, nil
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
