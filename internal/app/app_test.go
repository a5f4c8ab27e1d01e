package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sysmonitor/internal/collector"
	"sysmonitor/internal/config"
	"sysmonitor/internal/schedule"
	"sysmonitor/internal/settings"
	"sysmonitor/internal/storage"
	logx "sysmonitor/pkg/logx"
)

type recordingLauncher struct {
	mu    sync.Mutex
	calls [][]string
	seen  chan []string
}

func newRecordingLauncher() *recordingLauncher {
	return &recordingLauncher{seen: make(chan []string, 16)}
}

func (l *recordingLauncher) Launch(_ context.Context, program string, args []string) collector.Outcome {
	l.mu.Lock()
	l.calls = append(l.calls, args)
	l.mu.Unlock()
	l.seen <- args
	now := time.Now()
	return collector.Outcome{RunID: "r1", Status: collector.StatusSuccess, Program: program, Args: args, PID: 7, StartedAt: now, FinishedAt: now}
}

type testEnv struct {
	dir      string
	cfgPath  string
	settings string
	history  string
}

func newEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:      dir,
		cfgPath:  filepath.Join(dir, "config.json"),
		settings: filepath.Join(dir, "settings.json"),
		history:  filepath.Join(dir, "history"),
	}
	env.writeConfig(t)
	return env
}

func (env testEnv) writeConfig(t *testing.T) {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Collector.Program = "collector"
	cfg.Schedule.SettingsPath = env.settings
	cfg.Storage = &config.StorageConfig{Driver: "file", Path: env.history}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.cfgPath, b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func recvArgs(t *testing.T, l *recordingLauncher) []string {
	t.Helper()
	select {
	case a := <-l.seen:
		return a
	case <-time.After(3 * time.Second):
		t.Fatalf("collector not launched")
		return nil
	}
}

func waitState(t *testing.T, s *schedule.Scheduler, want schedule.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state=%s want %s", s.State(), want)
}

func TestStartsOnFirstSaveThenReconfigures(t *testing.T) {
	env := newEnv(t)
	l := newRecordingLauncher()
	var notified []string
	var nmu sync.Mutex
	a, err := New(env.cfgPath, WithLauncher(l), WithNotifier(func(s string) {
		nmu.Lock()
		notified = append(notified, s)
		nmu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := a.Scheduler().State(); st != schedule.Idle {
		t.Fatalf("state before save=%s", st)
	}
	time.Sleep(150 * time.Millisecond)

	// The settings editor is a separate process with its own store.
	editor := settings.NewStore(env.settings, settings.Options{})
	if err := editor.Save(settings.Values{Seconds: 15, TargetDirectory: "/data"}); err != nil {
		t.Fatal(err)
	}
	got := recvArgs(t, l)
	if n := len(got); n < 2 || got[n-2] != "-baseDir" || got[n-1] != "/data" {
		t.Fatalf("args=%v", got)
	}
	waitState(t, a.Scheduler(), schedule.Waiting)

	if err := editor.Save(settings.Values{Minutes: 2, TargetDirectory: "/other", UsageThreshold: 40, LogUsageChecked: true}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for a.Scheduler().Snapshot().Config.TargetDirectory != "/other" {
		if time.Now().After(deadline) {
			t.Fatalf("reconfigure not applied: %+v", a.Scheduler().Snapshot().Config)
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := a.Scheduler().Snapshot()
	if snap.Config.Interval != 2*time.Minute || snap.Config.UsageThreshold != 40 || snap.State != schedule.Waiting {
		t.Fatalf("snapshot=%+v", snap)
	}

	if err := a.Stop(context.Background(), StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := a.Scheduler().State(); st != schedule.Stopped {
		t.Fatalf("state after stop=%s", st)
	}
	if c := a.sup.Counters(); c.Active != 0 || c.Started == 0 {
		t.Fatalf("supervisor counters after stop=%+v", c)
	}

	nmu.Lock()
	if len(notified) != 2 || notified[0] != "READY=1" || notified[1] != "STOPPING=1" {
		t.Fatalf("notified=%v", notified)
	}
	nmu.Unlock()

	st, err := storage.Open(storage.Config{Driver: "file", Path: env.history}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.RecentRuns(context.Background(), 10)
	if err != nil || len(runs) != 1 || runs[0].Status != "success" || runs[0].Cycle != 1 {
		t.Fatalf("history=%+v err=%v", runs, err)
	}
}

func TestStartsImmediatelyWithSavedSettings(t *testing.T) {
	env := newEnv(t)
	if err := settings.NewStore(env.settings, settings.Options{}).Save(settings.Values{Hours: 1, TargetDirectory: "/data"}); err != nil {
		t.Fatal(err)
	}
	l := newRecordingLauncher()
	a, err := New(env.cfgPath, WithLauncher(l), WithNotifier(func(string) {}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	recvArgs(t, l)
	waitState(t, a.Scheduler(), schedule.Waiting)
	if snap := a.Scheduler().Snapshot(); snap.Config.Interval != time.Hour {
		t.Fatalf("interval=%s", snap.Config.Interval)
	}
	_ = a.Stop(context.Background(), StopSIGTERM)
}

func TestStartsOnFirstSaveIntoNewDir(t *testing.T) {
	env := newEnv(t)
	env.settings = filepath.Join(env.dir, "conf.d", "settings.json")
	env.writeConfig(t)

	l := newRecordingLauncher()
	a, err := New(env.cfgPath, WithLauncher(l), WithNotifier(func(string) {}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()
	time.Sleep(150 * time.Millisecond)

	if err := settings.NewStore(env.settings, settings.Options{}).Save(settings.Values{Seconds: 15, TargetDirectory: "/data"}); err != nil {
		t.Fatal(err)
	}
	recvArgs(t, l)
	waitState(t, a.Scheduler(), schedule.Waiting)
}

func TestCollectorCommandOverlay(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	def := CollectorCommand(cfg)
	if def.Script != "getData.ps1" || def.DirFlag != "-baseDir" {
		t.Fatalf("defaults lost: %+v", def)
	}
	cfg.Collector = config.CollectorConfig{Program: "/usr/bin/collect", Args: []string{"--quiet"}, DirFlag: "--dir"}
	c := CollectorCommand(cfg)
	if c.Program != "/usr/bin/collect" || c.DirFlag != "--dir" || len(c.Args) != 1 || c.ThresholdFlag != "-usageThreshold" {
		t.Fatalf("overlay=%+v", c)
	}
}

func TestRunRecord(t *testing.T) {
	t.Parallel()

	start := time.Now()
	r := RunRecord(3, collector.Outcome{
		RunID: "x", Status: collector.StatusFailed, Err: collector.ErrNotFound,
		ExitCode: -1, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
	})
	if r.Status != "failed" || r.Error == "" || r.TookMS != 1500 || r.Cycle != 3 {
		t.Fatalf("record=%+v", r)
	}
}
