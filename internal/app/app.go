package app

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"twitchbot/internal/config"
	"twitchbot/internal/cooldown"
	"twitchbot/internal/dispatch"
	"twitchbot/internal/eventbus"
	"twitchbot/internal/metrics"
	"twitchbot/internal/platform"
	"twitchbot/internal/platform/twitchapi"
	rtsup "twitchbot/internal/runtime/supervisor"
	"twitchbot/internal/storage"
	"twitchbot/internal/template"
	kit "twitchbot/internal/transport"
	"twitchbot/internal/transport/twitch"
	"twitchbot/internal/webhook"
	logx "twitchbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	api     platform.API

	cooldowns *cooldown.Tracker
	hooks     *webhook.Service
	disp      *dispatch.Dispatcher

	metrics *metrics.Collector
	mserver *metrics.Server
	maint   *maintenance

	workers int
	events  chan kit.Event
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	if err := validateConfig(log.With(logx.String("comp", "config")))(context.Background(), cfg); err != nil {
		return nil, err
	}

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ad, err := twitch.New(mapTwitchConfig(cfg), log.With(logx.String("comp", "twitch")))
	if err != nil {
		return nil, err
	}

	var api platform.API
	if ac, ok := mapAPIConfig(cfg); ok {
		c, err := twitchapi.New(ac, log.With(logx.String("comp", "helix")))
		if err != nil {
			return nil, err
		}
		api = c
	} else {
		log.Warn("twitch api credentials missing; game, random.viewer and clip commands will fail")
	}

	cd := cooldown.New(cooldown.Options{
		Persister: store,
		Log:       log.With(logx.String("comp", "cooldown")),
	})

	whCfg, err := mapWebhookConfig(cfg)
	if err != nil {
		return nil, err
	}
	hooks := webhook.New(whCfg, &http.Client{}, log.With(logx.String("comp", "webhook")), bus)

	reg := template.NewRegistry()
	template.RegisterBuiltins(reg, template.BuiltinOptions{})
	renderer := template.NewRenderer(template.Options{
		Registry: reg,
		API:      api,
		Log:      log.With(logx.String("comp", "template")),
		OnActionError: func(action string, err error) {
			eventbus.Emit(bus, eventbus.TopicActionError, eventbus.ActionErrorEvent{Action: action, Error: err.Error()})
		},
	})
	log.Debug("template actions registered", logx.Any("actions", renderer.Registry().Names()))

	opts := dispatch.Options{
		Config:   cfgm,
		Renderer: renderer,
		Cooldown: cd,
		API:      api,
		Webhook:  hooks,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "dispatch")),
		Prefix:   cfg.Prefix(),
	}
	disp := dispatch.New(opts)

	collector := metrics.New(bus)
	workers, queue := dispatchPool(cfg)

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		api:       api,
		cooldowns: cd,
		hooks:     hooks,
		disp:      disp,
		metrics:   collector,
		mserver:   metrics.NewServer(mapMetricsConfig(cfg), collector, log.With(logx.String("comp", "metrics"))),
		maint:     newMaintenance(log.With(logx.String("comp", "maintenance")), cd.Prune),
		workers:   workers,
		events:    make(chan kit.Event, queue),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig(a.log.With(logx.String("comp", "config"))))

	if n, err := a.cooldowns.Restore(run); err != nil {
		a.log.Warn("cooldown restore failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("cooldowns restored", logx.Int("count", n))
	}
	if err := a.maint.Apply(cfg.PruneSchedule()); err != nil {
		return err
	}

	a.hooks.Start(run)

	a.sup.Go0("metrics.collect", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.metrics.SetChannels(len(cfg.ActiveChannelNames()))
	a.mserver.Start(run)

	if a.store != nil {
		a.sup.Go0("audit", func(c context.Context) {
			runAudit(c, a.bus, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	startWorkers(a.sup, a.workers, a.events, a.disp.Handle)

	if err := a.adapter.Start(run, a.events); err != nil {
		return err
	}
	a.adapter.SyncChannels(cfg.ActiveChannelNames())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started",
		logx.Int("channels", len(cfg.ActiveChannelNames())),
		logx.Int("workers", a.workers),
		logx.Bool("api", a.api != nil),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applyConfig pushes a committed snapshot into the running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *Config) {
	sections, attrs, channels := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if len(channels) > 0 {
		a.log.Debug("channel config changes detected", logx.Any("channels", channels))
	}

	// The IRC identity, API credentials and storage are bound at boot.
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "twitch") {
		a.log.Warn("twitch config changed; restart required for identity or credential changes")
	}
	if slices.Contains(sections, "dispatch") && newCfg.Dispatch.Workers != oldCfg.Dispatch.Workers {
		a.log.Warn("dispatch.workers changed; restart required")
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.disp.SetPrefix(newCfg.Prefix())
	active := newCfg.ActiveChannelNames()
	a.adapter.SyncChannels(active)

	if wc, err := mapWebhookConfig(newCfg); err != nil {
		a.log.Warn("invalid webhook config; keeping previous", logx.Err(err))
	} else {
		a.hooks.Apply(wc)
	}
	a.mserver.Reconfigure(ctx, mapMetricsConfig(newCfg))
	if err := a.maint.Apply(newCfg.PruneSchedule()); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	}

	eventbus.Emit(a.bus, eventbus.TopicReload, eventbus.ReloadEvent{
		Channels: len(active),
		Summary:  strings.Join(sections, ","),
	})
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so it cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.mserver.Stop(c); return nil })
	step("webhook", 3*time.Second, func(c context.Context) error { a.hooks.Stop(c); return nil })

	// Wait for workers before closing storage; in-flight dispatches still write cooldowns.
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
