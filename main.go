package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/db"
	"github.com/iamwavecut/ngwarden/internal/db/redis"
	"github.com/iamwavecut/ngwarden/internal/db/sqlite"
	"github.com/iamwavecut/ngwarden/internal/event"
	"github.com/iamwavecut/ngwarden/internal/handlers"
	"github.com/iamwavecut/ngwarden/internal/infra"
	"github.com/iamwavecut/ngwarden/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngwarden/internal/lifecycle"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/observability"
	"github.com/iamwavecut/ngwarden/internal/state"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Fatal("exiting")
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config) error {
	workDir, err := infra.EnsureWorkDir(cfg.DotPath)
	if err != nil {
		return err
	}

	dbClient, err := sqlite.NewSQLiteClient(ctx, workDir, cfg.Store.SQLiteFile)
	if err != nil {
		return errors.WithMessage(err, "cant open database")
	}
	defer func() { _ = dbClient.Close() }()

	if err := seedPolicies(ctx, cfg.PolicyFile, dbClient); err != nil {
		return err
	}

	var snapshots db.SnapshotStore = dbClient
	if cfg.Store.SnapshotBackend == "redis" {
		redisStore, err := redis.NewSnapshotStore(ctx, cfg.Store.RedisURL)
		if err != nil {
			return errors.WithMessage(err, "cant connect snapshot backend")
		}
		defer func() { _ = redisStore.Close() }()
		snapshots = redisStore
	}

	journalPath := cfg.Observability.AuditJournal
	if !filepath.IsAbs(journalPath) {
		journalPath = filepath.Join(workDir, journalPath)
	}
	journal, err := observability.NewAuditJournal(journalPath)
	if err != nil {
		return errors.WithMessage(err, "cant open audit journal")
	}
	defer func() { _ = journal.Close() }()

	botAPI, err := telegram.NewBotAPI(cfg.TelegramAPIToken, cfg.Gateway)
	if err != nil {
		return errors.WithMessage(err, "cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	log.WithField("bot", botAPI.Self.UserName).Info("authorized")

	store := state.NewStore(cfg.Moderation.AuditTailSize)
	gateway := telegram.NewGateway(botAPI, cfg.Gateway)
	engine, err := moderation.NewEngine(moderation.Deps{
		Store:      store,
		Policies:   moderation.NewPolicyBook(dbClient, cfg.Moderation),
		Gateway:    gateway,
		Snapshots:  snapshots,
		History:    dbClient,
		Sinks:      []moderation.AuditSink{dbClient, journal},
		DedupeSize: cfg.Runtime.DedupeSize,
	})
	if err != nil {
		return err
	}
	lanes := event.NewLanes(cfg.Runtime.Lanes, cfg.Runtime.LaneQueueSize)

	runtime := lifecycle.NewRuntime()
	runtime.Register("tracing", observability.NewTracing(cfg.Observability.TracingDisabled))
	runtime.Register("metrics", observability.NewMetricsServer(cfg.Observability.MetricsAddr))
	runtime.Register("flusher", state.NewFlusher(store, snapshots, dbClient, cfg.Store.FlushInterval))
	runtime.Register("gateway", gateway)
	runtime.Register("lanes", lanes)
	runtime.Register("sweeper", moderation.NewSweeper(engine, cfg.Runtime.SweepInterval))
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithField("error", err.Error()).Error("unclean shutdown")
		}
	}()

	service := bot.NewService(
		engine,
		lanes,
		telegram.NewAdminCache(botAPI, cfg.Gateway.AdminCacheTTL),
		telegram.NewOperations(botAPI),
	)
	bot.RegisterUpdateHandler("guard", handlers.NewGuard(service))
	bot.RegisterUpdateHandler("commands", handlers.NewCommands(service))
	updateProcessor := bot.NewUpdateProcessor(cfg.EnabledHandlers)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "my_chat_member"}
	updates := bot.GetUpdatesChan(pollCtx, botAPI, updateConfig, 100)

	done := make(chan struct{})
	go infra.GoRecoverable(-1, "process_updates", func() {
		for update := range updates {
			if err := updateProcessor.Process(pollCtx, &update); err != nil {
				log.WithField("error", err.Error()).Error("cant process update")
			}
		}
		close(done)
	})

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-infra.WatchExecutable(pollCtx):
		log.Warn("executable file was modified, restarting")
	case <-done:
		log.Warn("no more updates")
	}
	cancelPoll()
	return nil
}

// seedPolicies writes policy file entries over the stored chat settings.
func seedPolicies(ctx context.Context, path string, client db.Client) error {
	pf, err := config.LoadPolicyFile(path)
	if err != nil {
		return errors.WithMessage(err, "cant load policy file")
	}
	for _, chat := range pf.Chats {
		settings, err := client.GetSettings(ctx, chat.ChatID)
		if err != nil {
			return errors.WithMessagef(err, "cant read settings of chat %d", chat.ChatID)
		}
		if settings == nil {
			settings = db.DefaultSettings(chat.ChatID)
		}
		settings.ApplyPolicy(chat)
		if err := client.SetSettings(ctx, settings); err != nil {
			return errors.WithMessagef(err, "cant seed settings of chat %d", chat.ChatID)
		}
	}
	if len(pf.Chats) > 0 {
		log.WithField("chats", len(pf.Chats)).Info("policy file applied")
	}
	return nil
}
