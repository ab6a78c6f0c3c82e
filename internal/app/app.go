// Package app wires the daemon together: config, logging, store, feed
// adapters, delivery sinks, the coordinator, the cron trigger, and the
// operational HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"stocknotify/internal/config"
	"stocknotify/internal/notify"
	"stocknotify/internal/registry"
	"stocknotify/internal/runtime/supervisor"
	"stocknotify/internal/schedule"
	"stocknotify/internal/server"
	"stocknotify/internal/sink"
	"stocknotify/internal/source"
	"stocknotify/internal/store"
	"stocknotify/pkg/fetchx"
	logx "stocknotify/pkg/logx"
)

type App struct {
	cfgm    *config.Manager
	secrets config.Secrets

	logs *logx.Service
	log  logx.Logger

	kv    store.KV
	reg   *registry.Registry
	coord *notify.Service

	mu    sync.Mutex
	sched *schedule.Service
	srv   *server.Service
	sup   *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	storeCfg, err := mapStoreConfig(cfg, secrets)
	if err != nil {
		return nil, err
	}
	kv, err := store.Open(storeCfg, logSvc.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("store opened", logx.String("driver", storeCfg.Driver))

	reg := registry.New(kv, logSvc.Logger().With(logx.String("comp", "registry")))
	dedup := store.NewDedup(kv)

	client := fetchx.New(&http.Client{}, logSvc.Logger().With(logx.String("comp", "fetch")))
	adapters := []source.Adapter{
		source.NewPR(client, logSvc.Logger().With(logx.String("comp", "source"))),
		source.NewX(client, logSvc.Logger().With(logx.String("comp", "source"))),
	}

	sinks, err := buildSinks(cfg, secrets, client, logSvc)
	if err != nil {
		return nil, err
	}

	coord := notify.New(
		notify.Config{Workers: cfg.Pipeline.Workers},
		reg, dedup, adapters, sinks,
		logSvc.Logger().With(logx.String("comp", "notify")),
	)

	a := &App{
		cfgm:    cfgm,
		secrets: secrets,
		logs:    logSvc,
		log:     log,
		kv:      kv,
		reg:     reg,
		coord:   coord,
	}
	a.sched = schedule.New(schedule.Config{
		Spec:     cfg.Scheduler.Spec,
		Timezone: cfg.Scheduler.Timezone,
	}, coord, logSvc.Logger().With(logx.String("comp", "schedule")))

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.srv = server.New(srvCfg, reg, logSvc.Logger().With(logx.String("comp", "http")))

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.srv.Enabled() {
		if err := a.srv.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.sup.Go("config-watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-updates:
				if cfg != nil {
					a.applyConfig(ctx, cfg)
				}
			}
		}
	})
	a.sup.Go("sd-watchdog", watchdogLoop)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.mu.Lock()
	sched := a.sched
	srv := a.srv
	sup := a.sup
	a.mu.Unlock()

	if sched != nil {
		sched.Stop(ctx)
	}
	if srv != nil {
		srv.Stop(ctx)
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	if a.kv != nil {
		_ = a.kv.Close()
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// applyConfig hot-applies what can change at runtime: logging sinks and the
// poll schedule. Store driver and sink credentials need a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		return
	}

	newSched := schedule.Config{Spec: cfg.Scheduler.Spec, Timezone: cfg.Scheduler.Timezone}
	old := a.sched
	old.Stop(ctx)
	a.sched = schedule.New(newSched, a.coord, a.logs.Logger().With(logx.String("comp", "schedule")))
	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.log.Error("schedule restart failed; trigger inactive", logx.Err(err))
	}
}

// watchdogLoop pings systemd's watchdog when one is armed for this unit.
func watchdogLoop(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

func buildSinks(cfg *config.Config, secrets config.Secrets, client *fetchx.Client, logs *logx.Service) (notify.Sinks, error) {
	var sinks notify.Sinks

	webhookTimeout, err := config.ParseDurationOrDefault("sinks.webhook.timeout", cfg.Sinks.Webhook.Timeout, 10*time.Second)
	if err != nil {
		return sinks, err
	}
	sinks.Webhook = sink.NewWebhook(sink.WebhookConfig{
		RetryMax:   cfg.Sinks.Webhook.RetryMax,
		Timeout:    webhookTimeout,
		RatePerSec: cfg.Sinks.Webhook.RatePerSec,
	}, client, logs.Logger().With(logx.String("comp", "sink")))

	if secrets.LineChannelToken != "" {
		lineTimeout, err := config.ParseDurationOrDefault("sinks.line.timeout", cfg.Sinks.Line.Timeout, 10*time.Second)
		if err != nil {
			return sinks, err
		}
		sinks.Line = sink.NewLine(sink.LineConfig{
			Token:    secrets.LineChannelToken,
			RetryMax: cfg.Sinks.Line.RetryMax,
			Timeout:  lineTimeout,
		}, client, logs.Logger().With(logx.String("comp", "sink")))
	}

	if cfg.Sinks.Telegram.Enabled && secrets.TelegramBotToken != "" {
		tg, err := sink.NewTelegram(sink.TelegramConfig{Token: secrets.TelegramBotToken},
			logs.Logger().With(logx.String("comp", "sink")))
		if err != nil {
			return sinks, err
		}
		sinks.Telegram = tg
	}

	return sinks, nil
}

func mapStoreConfig(cfg *config.Config, secrets config.Secrets) (store.Config, error) {
	busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		Addr:        cfg.Store.Addr,
		Password:    secrets.RedisPassword,
		DB:          cfg.Store.DB,
		BusyTimeout: busy,
	}, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationField("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}
