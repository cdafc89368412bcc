package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"notifface/internal/companion"
	"notifface/internal/config"
	"notifface/internal/datachannel"
	"notifface/internal/host"
	"notifface/internal/observability/debughttp"
	"notifface/internal/producer"
	"notifface/internal/runtime/supervisor"
	"notifface/internal/storage"
	logx "notifface/pkg/logx"
	"notifface/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	ch    *datachannel.Memory
	src   *host.FileSource // nil when host.notifications_file is empty
	prod  *producer.Service
	comp  *companion.Service
	debug *debughttp.Service
	sd    *systemd.Notifier
}

// State is what the debug server returns at /state.
type State struct {
	Config     string              `json:"config"`
	Companion  companion.Status    `json:"companion"`
	Producer   *producer.Status    `json:"producer,omitempty"`
	Channel    datachannel.Stats   `json:"channel"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sd:      systemd.New(),
	}
	if err := a.build(cfg); err != nil {
		a.closeStore()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// build wires the channel and both ends of it from cfg.
func (a *App) build(cfg *config.Config) error {
	a.ch = datachannel.NewMemory(mapChannelOptions(cfg, a.store, a.log.With(logx.String("comp", "channel")))...)
	if cfg.Channel.Persist {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := a.ch.Restore(ctx)
		cancel()
		if err != nil {
			a.log.Warn("channel restore failed; starting empty", logx.Err(err))
		} else if n > 0 {
			a.log.Info("channel restored", logx.Int("paths", n))
		}
	}

	if file := strings.TrimSpace(cfg.Host.NotificationsFile); file != "" {
		pc, err := mapProducerConfig(cfg)
		if err != nil {
			return err
		}
		a.src = host.NewFileSource(file, a.log.With(logx.String("comp", "host")))
		a.prod = producer.New(pc, a.src, a.ch, a.log)
	}

	cc, err := mapCompanionConfig(cfg)
	if err != nil {
		return err
	}
	a.comp, err = companion.New(cc, a.ch, a.log)
	if err != nil {
		return fmt.Errorf("companion: %w", err)
	}

	dc, err := mapDebugConfig(cfg)
	if err != nil {
		return err
	}
	a.debug = debughttp.New(dc, debughttp.Sources{
		Frame: a.comp.Frame,
		State: func() any { return a.State() },
	}, a.log.With(logx.String("comp", "debughttp")))
	return nil
}

// State snapshots every component for the debug server.
func (a *App) State() State {
	st := State{
		Config:    a.cfgPath,
		Companion: a.comp.Status(),
		Channel:   a.ch.Stats(),
	}
	if a.prod != nil {
		ps := a.prod.Status()
		st.Producer = &ps
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapCompanionConfig(cfg); err != nil {
			return err
		}
		_, err := mapDebugConfig(cfg)
		return err
	})

	a.comp.Start(a.sup.Context())

	if a.src != nil {
		a.sup.GoRestart("host.watch", func(c context.Context) error {
			return a.src.Run(c, func(ev host.Event) { a.prod.Dispatch(c, ev) })
		}, supervisor.WithBackoff(time.Second, 30*time.Second))
	} else {
		a.log.Info("host disabled; showing the last published icons only")
	}

	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}

	// hot reload config fan-out
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
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := a.sd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			err := a.sd.Watchdog(c, func() bool { return a.sup.Err() == nil })
			if err != nil {
				a.log.Warn("systemd watchdog stopped", logx.Err(err))
			}
		})
	}

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// restartSections cannot be hot-applied.
var restartSections = []string{"channel", "host", "storage"}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	// apply logging updates first so the rest is logged at the new level
	a.logs.Apply(mapLogConfig(next))

	if cc, err := mapCompanionConfig(next); err != nil {
		a.log.Warn("invalid face config; keeping previous", logx.Err(err))
	} else if err := a.comp.Apply(cc); err != nil {
		a.log.Warn("face config not applied", logx.Err(err))
	}

	if dc, err := mapDebugConfig(next); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.sd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		if err := a.step(ctx, name, limit, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("companion", 2*time.Second, a.comp.Stop)
	step("debughttp", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("channel", time.Second, func(context.Context) error { return a.ch.Close() })
	step("storage", time.Second, func(context.Context) error { a.closeStore(); return nil })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. fn must honor its context.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	// respect the caller's deadline; never extend it
	stepCtx, cancel := context.WithTimeout(ctx, limit)
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
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		// Leak logging: observe when/if the step eventually finishes.
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
		return stepCtx.Err()
	}
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.store = nil
}
