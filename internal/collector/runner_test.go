package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	logx "sysmonitor/pkg/logx"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func newTestRunner(cfg Config) *Runner {
	r := NewRunner(cfg, logx.Nop())
	r.elevate = func(int, Priority) error { return nil }
	return r
}

func TestLaunchMissingExecutable(t *testing.T) {
	t.Parallel()
	r := newTestRunner(Config{})
	out := r.Launch(context.Background(), filepath.Join(t.TempDir(), "no-such-collector"), []string{"-baseDir", "/data"})
	if out.OK() {
		t.Fatal("expected failure for missing executable")
	}
	if !errors.Is(out.Err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", out.Err)
	}
	if out.RunID == "" || out.FinishedAt.IsZero() {
		t.Fatalf("outcome missing bookkeeping: %+v", out)
	}
}

func TestLaunchNonZeroExitIsSuccess(t *testing.T) {
	requireShell(t)
	t.Parallel()
	r := newTestRunner(Config{})
	out := r.Launch(context.Background(), "sh", []string{"-c", "exit 3"})
	if !out.OK() {
		t.Fatalf("non-zero exit must not fail the run: %v", out.Err)
	}
	if out.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", out.ExitCode)
	}
	if out.PID <= 0 {
		t.Fatalf("pid = %d", out.PID)
	}
	if _, ok := r.Current(); ok {
		t.Fatal("run handle should be discarded after exit")
	}
}

func TestLaunchPriorityFailureIsNotFatal(t *testing.T) {
	requireShell(t)
	t.Parallel()
	r := NewRunner(Config{Priority: PriorityHighest}, logx.Nop())
	var gotPID int
	r.elevate = func(pid int, p Priority) error {
		gotPID = pid
		if p != PriorityHighest {
			t.Errorf("priority = %q", p)
		}
		return errors.New("permission denied")
	}
	out := r.Launch(context.Background(), "sh", []string{"-c", "exit 0"})
	if !out.OK() {
		t.Fatalf("priority failure must not fail the run: %v", out.Err)
	}
	if gotPID != out.PID {
		t.Fatalf("elevate pid = %d, want %d", gotPID, out.PID)
	}
}

func TestLaunchNormalPrioritySkipsElevation(t *testing.T) {
	requireShell(t)
	t.Parallel()
	r := NewRunner(Config{Priority: PriorityNormal}, logx.Nop())
	r.elevate = func(int, Priority) error {
		t.Error("elevate called for normal priority")
		return nil
	}
	if out := r.Launch(context.Background(), "sh", []string{"-c", "true"}); !out.OK() {
		t.Fatalf("launch failed: %v", out.Err)
	}
}

func TestLaunchRunTimeout(t *testing.T) {
	requireShell(t)
	t.Parallel()
	r := newTestRunner(Config{RunTimeout: 100 * time.Millisecond})
	start := time.Now()
	out := r.Launch(context.Background(), "sh", []string{"-c", "sleep 5"})
	if !errors.Is(out.Err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", out.Err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("timeout did not kill the run")
	}
}

func TestLaunchAbandonedOnContext(t *testing.T) {
	requireShell(t)
	t.Parallel()
	r := newTestRunner(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out := r.Launch(ctx, "sh", []string{"-c", "sleep 1"})
	if !errors.Is(out.Err, ErrAbandoned) {
		t.Fatalf("err = %v, want ErrAbandoned", out.Err)
	}
}

func TestLaunchCapturesOutput(t *testing.T) {
	requireShell(t)
	t.Parallel()
	path := filepath.Join(t.TempDir(), "collector.log")
	r := newTestRunner(Config{OutputPath: path})
	if out := r.Launch(context.Background(), "sh", []string{"-c", "echo collected"}); !out.OK() {
		t.Fatalf("launch failed: %v", out.Err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(b)) != "collected" {
		t.Fatalf("output = %q", b)
	}
}

func TestCommandArgv(t *testing.T) {
	t.Parallel()
	c := Command{
		Program:       "powershell.exe",
		Args:          []string{"-ExecutionPolicy", "Unrestricted"},
		ScriptFlag:    "-File",
		Script:        "getData.ps1",
		ResourceDir:   "/opt/sysmonitor",
		DirFlag:       "-baseDir",
		ThresholdFlag: "-usageThreshold",
	}
	script := filepath.Join("/opt/sysmonitor", "getData.ps1")

	tests := []struct {
		name      string
		dir       string
		threshold int
		want      []string
	}{
		{"no threshold", "/data", 0, []string{"-ExecutionPolicy", "Unrestricted", "-File", script, "-baseDir", "/data"}},
		{"threshold", "/data", 40, []string{"-ExecutionPolicy", "Unrestricted", "-File", script, "-baseDir", "/data", "-usageThreshold", "40"}},
		{"empty dir", "", 0, []string{"-ExecutionPolicy", "Unrestricted", "-File", script, "-baseDir", ""}},
		{"spaces kept verbatim", "/my data", 0, []string{"-ExecutionPolicy", "Unrestricted", "-File", script, "-baseDir", "/my data"}},
	}
	for _, tt := range tests {
		got := c.Argv(tt.dir, tt.threshold)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("%s: Argv = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Priority{"": PriorityHighest, "realtime": PriorityHighest, "High": PriorityHigh, "none": PriorityNormal} {
		got, err := ParsePriority(in)
		if err != nil || got != want {
			t.Fatalf("ParsePriority(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePriority("turbo"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResourceDirOverride(t *testing.T) {
	t.Parallel()
	if got := ResourceDir(" /res "); got != "/res" {
		t.Fatalf("ResourceDir = %q", got)
	}
	if got := ResourceDir(""); got == "" {
		t.Fatal("ResourceDir fallback is empty")
	}
}
