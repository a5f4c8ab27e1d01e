package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"sysmonitor/internal/collector"
	"sysmonitor/internal/eventbus"
	logx "sysmonitor/pkg/logx"
)

// Launcher runs one collector process to completion.
type Launcher interface {
	Launch(ctx context.Context, program string, args []string) collector.Outcome
}

// Spawner owns the loop goroutine (the runtime supervisor satisfies it).
type Spawner interface {
	Go0(name string, fn func(ctx context.Context))
}

// Options configures a Scheduler. Zero values are usable.
type Options struct {
	Command collector.Command
	// MinInterval bounds cron-derived delays from below.
	MinInterval time.Duration
	Bus         eventbus.Bus
	Spawner     Spawner
	Log         logx.Logger
}

// StateChange is the payload of eventbus.TypeStateChanged.
type StateChange struct {
	From, To State
	Cause    string
}

// RunStarted is the payload of eventbus.TypeRunStarted.
type RunStarted struct {
	Cycle  uint64
	Config Config
	Args   []string
}

// RunFinished is the payload of eventbus.TypeRunFinished.
type RunFinished struct {
	Cycle     uint64
	Outcome   collector.Outcome
	NextDelay time.Duration
}

// Snapshot is a point-in-time view of a Scheduler.
type Snapshot struct {
	State       State
	Config      Config
	Cycles      uint64
	LastOutcome *collector.Outcome
	NextRunAt   time.Time
}

// Scheduler is the recurring run -> wait -> run engine for a single collector job.
type Scheduler struct {
	launcher Launcher
	opt      Options
	log      logx.Logger

	// after arms the delay timer; swapped in tests.
	after func(d time.Duration) (<-chan time.Time, func() bool)

	cfg atomic.Pointer[Config]

	mu        sync.Mutex
	state     State
	cycles    uint64
	last      *collector.Outcome
	nextRunAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	failWarn *rate.Limiter
}

// New returns an Idle scheduler that launches through l.
func New(l Launcher, opt Options) *Scheduler {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		launcher: l,
		opt:      opt,
		log:      log,
		after: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		// Launch failures repeat every cycle while the collector is missing;
		// warn a few times, then only at debug level.
		failWarn: rate.NewLimiter(rate.Every(10*time.Minute), 3),
	}
}

// SetSpawner sets who owns the loop goroutine. It must be called before Start.
func (s *Scheduler) SetSpawner(sp Spawner) {
	s.mu.Lock()
	s.opt.Spawner = sp
	s.mu.Unlock()
}

// Start captures cfg and begins the cycle with an immediate run.
// It is valid only once, from Idle; later calls return ErrAlreadyStarted (or ErrStopped).
func (s *Scheduler) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	switch s.state {
	case Stopped:
		s.mu.Unlock()
		return ErrStopped
	case Idle:
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	c := cfg
	s.cfg.Store(&c)
	s.fireLocked(evStart)
	spawner := s.opt.Spawner
	s.mu.Unlock()

	s.log.Info("scheduler started",
		logx.Int("interval_s", cfg.IntervalSeconds()),
		logx.String("target_dir", cfg.TargetDirectory),
		logx.Int("usage_threshold", cfg.UsageThreshold),
		logx.String("cron", cfg.Cron),
	)

	if spawner != nil {
		spawner.Go0("schedule.loop", s.loop)
	} else {
		go s.loop(context.Background())
	}
	return nil
}

// Reconfigure replaces the config used from the next cycle boundary on.
// A run or a wait already in progress is not interrupted.
func (s *Scheduler) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	state := s.state
	c := cfg
	s.cfg.Store(&c)
	s.mu.Unlock()

	s.log.Info("scheduler reconfigured",
		logx.String("state", state.String()),
		logx.Int("interval_s", cfg.IntervalSeconds()),
		logx.String("target_dir", cfg.TargetDirectory),
		logx.Int("usage_threshold", cfg.UsageThreshold),
	)
	s.publish(eventbus.TypeReconfigured, cfg)
	return nil
}

// Stop ends scheduling from any state. A pending wait is cancelled; an in-flight
// run is left to finish on its own and no further run is launched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	prev := s.state
	s.fireLocked(evStop)
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	if prev == Idle {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// Done is closed once the loop has exited (or Stop was called before Start).
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state, Cycles: s.cycles, NextRunAt: s.nextRunAt}
	if c := s.cfg.Load(); c != nil {
		snap.Config = *c
	}
	if s.last != nil {
		o := *s.last
		snap.LastOutcome = &o
	}
	return snap
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.doneOnce.Do(func() { close(s.done) })

	for {
		cfg := *s.cfg.Load()
		out := s.run(ctx, cfg)

		completedAt := out.FinishedAt
		if completedAt.IsZero() {
			completedAt = time.Now()
		}
		// Delay follows the config current at this cycle boundary.
		cfg = *s.cfg.Load()
		delay := cfg.Delay(completedAt, s.opt.MinInterval)

		s.mu.Lock()
		s.last = &out
		ok := s.fireLocked(evRunCompleted)
		if ok {
			s.nextRunAt = completedAt.Add(delay)
		}
		cycle := s.cycles
		s.mu.Unlock()

		s.publish(eventbus.TypeRunFinished, RunFinished{Cycle: cycle, Outcome: out, NextDelay: delay})
		s.logOutcome(out, delay)
		if !ok {
			return
		}

		timer, stopTimer := s.after(delay)
		select {
		case <-timer:
		case <-s.stopCh:
			stopTimer()
			return
		case <-ctx.Done():
			stopTimer()
			s.Stop()
			return
		}

		s.mu.Lock()
		ok = s.fireLocked(evDelayExpired)
		s.mu.Unlock()
		if !ok {
			return
		}
	}
}

// run launches one collector. A panic in the launcher is turned into a failed outcome
// so the loop always reaches the next wait.
func (s *Scheduler) run(ctx context.Context, cfg Config) (out collector.Outcome) {
	args := s.opt.Command.Argv(cfg.TargetDirectory, cfg.UsageThreshold)

	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.nextRunAt = time.Time{}
	s.mu.Unlock()

	s.publish(eventbus.TypeRunStarted, RunStarted{Cycle: cycle, Config: cfg, Args: args})

	defer func() {
		if r := recover(); r != nil {
			now := time.Now()
			out = collector.Outcome{
				Status:     collector.StatusFailed,
				Err:        fmt.Errorf("collector launch panicked: %v", r),
				Program:    s.opt.Command.Program,
				Args:       args,
				ExitCode:   -1,
				StartedAt:  now,
				FinishedAt: now,
			}
		}
	}()
	return s.launcher.Launch(ctx, s.opt.Command.Program, args)
}

func (s *Scheduler) logOutcome(out collector.Outcome, delay time.Duration) {
	if out.OK() {
		s.log.Info("collector run finished",
			logx.String("run_id", out.RunID),
			logx.Int("pid", out.PID),
			logx.Int("exit_code", out.ExitCode),
			logx.Duration("took", out.Duration()),
			logx.Duration("next_in", delay),
		)
		return
	}
	fields := []logx.Field{
		logx.String("run_id", out.RunID),
		logx.String("program", out.Program),
		logx.Err(out.Err),
		logx.Duration("next_in", delay),
	}
	if s.failWarn.Allow() {
		s.log.Warn("collector run failed", fields...)
		return
	}
	s.log.Debug("collector run failed", fields...)
}

// fireLocked applies ev to the state machine and publishes the transition.
// Caller holds s.mu.
func (s *Scheduler) fireLocked(ev event) bool {
	from := s.state
	to, ok := next(from, ev)
	if !ok {
		return false
	}
	s.state = to
	if to == Stopped {
		s.nextRunAt = time.Time{}
	}
	s.log.Debug("state changed", logx.String("from", from.String()), logx.String("to", to.String()), logx.String("event", ev.String()))
	s.publish(eventbus.TypeStateChanged, StateChange{From: from, To: to, Cause: ev.String()})
	return true
}

func (s *Scheduler) publish(typ string, data any) {
	if s.opt.Bus == nil {
		return
	}
	s.opt.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
