// Package app assembles the bot: config, logging, storage, transport,
// the reminder core and its scheduler, and the retention janitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter *telegram.Adapter
	store   reminder.Store
	bus     eventbus.Bus
	svc     *reminder.Service
	poller  *reminder.Poller
	router  *bot.Router
	metrics *metrics.Service
	cron    *cron.Cron

	sup    *rtsup.Supervisor
	cancel context.CancelFunc
}

func New(configPath string) (*App, error) {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(configPath)
	mgr.SetLogger(boot.With(logx.String("comp", "config")))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pollTimeout, err := cfg.Telegram.ParsePollTimeout()
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, boot)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// The log service uses the adapter as its chat sink, so it comes after.
	logSvc, log := logx.New(logConfig(cfg), adapter)
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := cfg.Storage.ParseBusyTimeout()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	rcfg, err := reminderConfig(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	bus := eventbus.New()
	svc := reminder.New(rcfg, store, adapter, log.With(logx.String("comp", "reminder")), bus)
	poller := reminder.NewPoller(svc, adapter.Ready(), log.With(logx.String("comp", "poller")))
	router := bot.New(bot.Config{
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}, adapter, svc, log.With(logx.String("comp", "bot")))
	met := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	}, bus, log.With(logx.String("comp", "metrics")))

	a := &App{
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		adapter: adapter,
		store:   store,
		bus:     bus,
		svc:     svc,
		poller:  poller,
		router:  router,
		metrics: met,
	}

	schedule := cfg.Reminder.PurgeSchedule
	if schedule == "" {
		schedule = "0 4 * * *"
	}
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(schedule, a.runJanitor); err != nil {
		store.Close()
		return nil, fmt.Errorf("reminder.purge_schedule: %w", err)
	}

	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		LogChat: logx.LogChatConfig{
			Enabled:    cfg.Logging.LogChat.Enabled && cfg.Telegram.LogChat != 0,
			ChatID:     cfg.Telegram.LogChat,
			MinLevel:   cfg.Logging.LogChat.MinLevel,
			RatePerSec: cfg.Logging.LogChat.RatePerSec,
		},
	}
}

func reminderConfig(cfg *config.Config) (reminder.Config, error) {
	poll, err := cfg.Reminder.ParsePollInterval()
	if err != nil {
		return reminder.Config{}, err
	}
	attempt, err := cfg.Reminder.ParseAttemptTimeout()
	if err != nil {
		return reminder.Config{}, err
	}
	retention, err := cfg.Reminder.ParseRetention()
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{
		PollInterval:   poll,
		AttemptTimeout: attempt,
		Retention:      retention,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sup = rtsup.New(runCtx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if err := a.metrics.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.router.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}
	a.poller.Start(runCtx)
	a.cron.Start()

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	a.sup.Go0("config.reload", func(c context.Context) {
		sub := a.cfgMgr.Subscribe(4)
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}
	a.log.Info("remindbot started")
	return nil
}

// applyReload picks up the runtime-tunable parts of a changed config file.
// Token, storage and schedule changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(logConfig(cfg))
	a.log.Info("configuration reloaded", logx.String("level", cfg.Logging.Level))
}

// runJanitor drops terminal reminders past retention, across all chats.
func (a *App) runJanitor() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().Add(-a.svc.Retention())
	n, err := a.svc.PurgeOld(ctx, 0, 0, cutoff)
	if err != nil {
		a.log.Error("retention purge failed", logx.Err(err))
		return
	}
	a.log.Info("retention purge done", logx.Int64("removed", n))
}

func (a *App) Stop(ctx context.Context) error {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err == nil && sent {
		a.log.Debug("sd_notify: stopping")
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	a.poller.Stop(ctx)
	if err := a.router.Stop(ctx); err != nil {
		a.log.Warn("transport stop error", logx.Err(err))
	}
	if err := a.metrics.Stop(ctx); err != nil {
		a.log.Warn("metrics stop error", logx.Err(err))
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.sup != nil {
		if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("background tasks stop error", logx.Err(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close error", logx.Err(err))
	}
	a.log.Info("remindbot stopped")
	a.logSvc.Close()
	return nil
}
