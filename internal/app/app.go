package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sysmonitor/internal/collector"
	"sysmonitor/internal/config"
	"sysmonitor/internal/eventbus"
	"sysmonitor/internal/runtime/supervisor"
	"sysmonitor/internal/schedule"
	"sysmonitor/internal/settings"
	"sysmonitor/internal/storage"
	kit "sysmonitor/internal/transport"
	"sysmonitor/internal/transport/telegram"
	logx "sysmonitor/pkg/logx"
)

// App is the owner of the scheduler: it starts it on the first saved settings,
// reconfigures it on every later save and stops it on shutdown.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	sup   *supervisor.Supervisor
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	settings *settings.Store
	runner   *collector.Runner
	sched    *schedule.Scheduler
	cron     string
	grace    time.Duration

	notify     func(state string)
	settingsCh chan settings.Values
}

type Option func(*options)

type options struct {
	launcher schedule.Launcher
	notify   func(state string)
	sender   kit.Sender
}

// WithLauncher replaces the process runner (tests).
func WithLauncher(l schedule.Launcher) Option { return func(o *options) { o.launcher = l } }

// WithNotifier replaces the systemd notification hook.
func WithNotifier(fn func(state string)) Option { return func(o *options) { o.notify = fn } }

// WithSender replaces the Telegram sender used by the log sink.
func WithSender(s kit.Sender) Option { return func(o *options) { o.sender = s } }

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, usedDefault, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	sender := o.sender
	if sender == nil && strings.TrimSpace(cfg.Telegram.Token) != "" {
		tg, err := telegram.New(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}
	logSvc, log := logx.New(LogConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))
	if usedDefault {
		log.Info("config file not found; using defaults", logx.String("path", cfgPath))
	}

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := StorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	st, err := SettingsStore(cfg, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:       cfgm,
		cfg:        cfg,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		settings:   st,
		cron:       strings.TrimSpace(cfg.Schedule.Cron),
		grace:      shutdownGrace(cfg),
		notify:     o.notify,
		settingsCh: make(chan settings.Values, 1),
	}
	if a.notify == nil {
		a.notify = sdNotify(log)
	}

	launcher := o.launcher
	if launcher == nil {
		rc, err := RunnerConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.runner = collector.NewRunner(rc, log.With(logx.String("comp", "collector")))
		launcher = a.runner
	}
	a.sched = schedule.New(launcher, schedule.Options{
		Command:     CollectorCommand(cfg),
		MinInterval: st.Floor(),
		Bus:         bus,
		Log:         log.With(logx.String("comp", "schedule")),
	})
	return a, nil
}

func (a *App) Scheduler() *schedule.Scheduler { return a.sched }
func (a *App) Settings() *settings.Store     { return a.settings }
func (a *App) Bus() eventbus.Bus             { return a.bus }

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
	a.sched.SetSpawner(a.sup)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("app.owner", func(c context.Context) {
		defer unsub()
		a.ownerLoop(c, events)
	})

	if err := os.MkdirAll(filepath.Dir(a.settings.Path()), 0o755); err != nil {
		a.log.Warn("settings dir unavailable", logx.String("path", a.settings.Path()), logx.Err(err))
	}
	a.sup.Go("settings.watch", func(c context.Context) error {
		return a.settings.Watch(c, a.offerSettings)
	})

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.configLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.settings.Exists() {
		v, err := a.settings.Load()
		if err != nil {
			a.log.Warn("settings unreadable; waiting for next save", logx.String("path", a.settings.Path()), logx.Err(err))
		} else {
			a.offerSettings(v)
		}
	} else {
		a.log.Info("no saved settings; waiting for first save", logx.String("path", a.settings.Path()))
	}

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// offerSettings queues v for the owner loop. Latest wins.
func (a *App) offerSettings(v settings.Values) {
	select {
	case a.settingsCh <- v:
		return
	default:
	}
	select {
	case <-a.settingsCh:
	default:
	}
	select {
	case a.settingsCh <- v:
	default:
	}
}

func (a *App) ownerLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-a.settingsCh:
			a.applySettings(v)
		case e, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, e)
		}
	}
}

// applySettings starts the scheduler on the first valid settings and
// reconfigures it afterwards.
func (a *App) applySettings(v settings.Values) {
	cfg, clamped := v.Resolve(a.settings.Floor())
	if clamped {
		a.log.Warn("interval below minimum; clamped",
			logx.Int("seconds", v.Seconds),
			logx.Duration("floor", a.settings.Floor()),
		)
	}
	cfg.Cron = a.cron

	var err error
	switch a.sched.State() {
	case schedule.Idle:
		err = a.sched.Start(cfg)
	case schedule.Stopped:
		a.log.Debug("settings change ignored; scheduler stopped")
		return
	default:
		err = a.sched.Reconfigure(cfg)
	}
	if err != nil {
		a.log.Warn("settings not applied", logx.Err(err))
	}
}

func (a *App) handleEvent(ctx context.Context, e eventbus.Event) {
	switch d := e.Data.(type) {
	case schedule.RunFinished:
		if a.store == nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := a.store.AppendRun(sctx, RunRecord(d.Cycle, d.Outcome))
		cancel()
		if err != nil {
			a.log.Warn("run history append failed", logx.String("run_id", d.Outcome.RunID), logx.Err(err))
		}
	case schedule.StateChange:
		a.log.Debug("event", logx.String("type", e.Type), logx.String("from", d.From.String()), logx.String("to", d.To.String()))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) configLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
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

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(LogConfig(newCfg))
			if pending := config.RestartRequired(sections); len(pending) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect",
					logx.String("sections", strings.Join(pending, ",")))
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() { done <- fn(stepCtx) }()
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

	// Stop cancels a pending wait at once. An in-flight collector gets the grace
	// period to exit; after that its wait is abandoned and the process left alone.
	a.sched.Stop()
	step("scheduler", a.grace, func(c context.Context) error {
		select {
		case <-a.sched.Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	a.logInFlight()

	step("supervisor", time.Second, a.sup.Stop)
	a.logSupervisor()
	step("storage", time.Second, func(context.Context) error {
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

// logInFlight reports a collector process that is still running once the
// scheduler has given up waiting for it.
func (a *App) logInFlight() {
	if a.runner == nil {
		return
	}
	if h, ok := a.runner.Current(); ok {
		a.log.Warn("collector still running; leaving it",
			logx.String("run_id", h.ID),
			logx.Int("pid", h.PID),
			logx.Duration("elapsed", time.Since(h.StartedAt)),
		)
	}
}

// logSupervisor reports goroutines that outlived the stop sequence or panicked.
func (a *App) logSupervisor() {
	snap := a.sup.Snapshot()
	a.log.Debug("supervisor stopped",
		logx.Int64("active", snap.Counters.Active),
		logx.Uint64("started", snap.Counters.Started),
	)
	for _, g := range snap.Goroutines {
		if g.Active == 0 && g.Panics == 0 {
			continue
		}
		a.log.Warn("goroutine did not stop cleanly",
			logx.String("name", g.Name),
			logx.Int64("active", g.Active),
			logx.Uint64("panics", g.Panics),
			logx.String("last_panic", g.LastPanic),
			logx.String("last_err", g.LastErr),
		)
	}
}

func sdNotify(log logx.Logger) func(state string) {
	return func(state string) {
		sent, err := daemon.SdNotify(false, state)
		if err != nil {
			log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
			return
		}
		if sent {
			log.Debug("sd_notify sent", logx.String("state", state))
		}
	}
}
