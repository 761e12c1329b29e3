package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MirrorTrade/internal/broker"
	"MirrorTrade/internal/config"
	"MirrorTrade/internal/engine"
	"MirrorTrade/internal/model"
	"MirrorTrade/internal/notifier"
	"MirrorTrade/internal/observability"
	"MirrorTrade/internal/recorder"
	"MirrorTrade/internal/scheduler"
	"MirrorTrade/internal/state"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := observability.NewLogger("main", "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := observability.NewLogger("main", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Str("config", cfgPath).Bool("dry_run", cfg.DryRun).Msg("MirrorTrade starting")

	// Init broker adapter
	var b broker.Broker
	if cfg.Broker.MasterAccessToken != "" {
		b = broker.NewKiteBroker(cfg, observability.NewLogger("broker", cfg.LogLevel))
	} else {
		// No live session; run against the mock for local development.
		children := make([]model.Account, 0, len(cfg.Children))
		for _, ch := range cfg.Children {
			children = append(children, model.Account{
				ID:        ch.ID,
				Role:      model.RoleChild,
				Available: ch.Available,
				MaxCap:    ch.MaxCap,
			})
		}
		b = &broker.MockBroker{ChildAccounts: children}
	}
	log.Info().Str("broker", b.Name()).Msg("broker adapter ready")

	// Init state store
	store, err := state.NewStore(cfg.State.File, observability.NewLogger("state", cfg.LogLevel))
	if err != nil {
		log.Fatal().Err(err).Msg("init state store")
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, observability.NewLogger("recorder", cfg.LogLevel))
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init engine
	lots := engine.NewLotTable(cfg.Lots.Default, cfg.Lots.Overrides)
	eng := engine.New(b, store, rec, lots, engine.Options{
		GraceWindow:    time.Duration(cfg.Poll.GraceWindowSec) * time.Second,
		DebounceTicks:  cfg.Poll.DebounceTicks,
		MinMarginDelta: cfg.Poll.MinMarginDelta,
		DryRun:         cfg.DryRun,
	}, observability.NewLogger("engine", cfg.LogLevel))

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy,
		observability.NewLogger("notifier", cfg.LogLevel))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, eng, tn, observability.NewLogger("scheduler", cfg.LogLevel))
	if err := sched.RegisterAll(cfg.Poll.Cron, cfg.Poll.SessionResetCron, cfg.Poll.EODAuditCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()

	// Start Telegram polling for operator commands
	go tn.StartPolling(ctx, sched.HandleCommand)

	log.Info().Msg("MirrorTrade is running")

	// SIGHUP queues an operator reset; SIGINT/SIGTERM shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			log.Info().Msg("SIGHUP received, queueing strategy reset")
			eng.RequestReset()
			continue
		}
		break
	}

	log.Info().Msg("shutdown signal received, stopping")
	cancel()
	// Let an in-flight tick finish before the process exits.
	<-sched.Stop().Done()
	log.Info().Msg("MirrorTrade stopped")
}
