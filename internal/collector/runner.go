// Package collector launches the external data-collection program.
//
// A Runner starts exactly one process per Launch call, asks the OS for a higher
// scheduling priority (best effort), and blocks until the process exits.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "sysmonitor/pkg/logx"
)

// Runner launches the collector and tracks the run in flight.
type Runner struct {
	cfg Config
	log logx.Logger

	// elevate is swapped in tests.
	elevate func(pid int, p Priority) error

	mu  sync.Mutex
	cur *RunHandle
}

// NewRunner returns a Runner that elevates priority per cfg.Priority.
func NewRunner(cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Priority == "" {
		cfg.Priority = PriorityHighest
	}
	return &Runner{cfg: cfg, log: log, elevate: elevatePriority}
}

// Current returns the in-flight run, if any.
func (r *Runner) Current() (RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return RunHandle{}, false
	}
	return *r.cur, true
}

// Launch starts program with args and waits for it to exit.
//
// Any exit, clean or not, yields StatusSuccess. Only a missing executable, a refused
// process creation, a RunTimeout or an ended ctx yield StatusFailed. Cancelling ctx
// stops the wait but never kills the process.
func (r *Runner) Launch(ctx context.Context, program string, args []string) Outcome {
	out := Outcome{
		RunID:    uuid.NewString(),
		Program:  program,
		Args:     append([]string(nil), args...),
		ExitCode: -1,
	}
	log := r.log.With(logx.String("run_id", out.RunID))

	path, err := exec.LookPath(program)
	if err != nil {
		return r.fail(log, out, fmt.Errorf("%w: %s: %w", ErrNotFound, program, err))
	}

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = sysProcAttr()
	var output *os.File
	if r.cfg.OutputPath != "" {
		f, err := os.OpenFile(r.cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Warn("collector output file unavailable", logx.String("path", r.cfg.OutputPath), logx.Err(err))
		} else {
			output = f
			cmd.Stdout = f
			cmd.Stderr = f
			defer output.Close()
		}
	}

	out.StartedAt = time.Now()
	if err := cmd.Start(); err != nil {
		return r.fail(log, out, fmt.Errorf("%w: %w", ErrStart, err))
	}
	out.PID = cmd.Process.Pid

	r.mu.Lock()
	r.cur = &RunHandle{ID: out.RunID, PID: out.PID, StartedAt: out.StartedAt}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cur = nil
		r.mu.Unlock()
	}()

	log.Debug("collector started", logx.Int("pid", out.PID), logx.String("program", path), logx.Strs("args", args))

	if r.cfg.Priority != PriorityNormal {
		if err := r.elevate(out.PID, r.cfg.Priority); err != nil {
			log.Warn("priority elevation failed; running at default priority",
				logx.Int("pid", out.PID), logx.String("priority", string(r.cfg.Priority)), logx.Err(err))
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if r.cfg.RunTimeout > 0 {
		t := time.NewTimer(r.cfg.RunTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-done:
		out.FinishedAt = time.Now()
		out.ExitCode = exitCode(cmd, err)
		r.markDone()
		log.Debug("collector exited", logx.Int("pid", out.PID), logx.Int("exit_code", out.ExitCode), logx.Duration("took", out.Duration()))
		return out
	case <-timeout:
		if err := killRun(cmd); err != nil {
			log.Warn("collector kill failed", logx.Int("pid", out.PID), logx.Err(err))
		}
		<-done
		out.FinishedAt = time.Now()
		r.markDone()
		return r.fail(log, out, fmt.Errorf("%w after %s", ErrTimeout, r.cfg.RunTimeout))
	case <-ctx.Done():
		out.FinishedAt = time.Now()
		return r.fail(log, out, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err()))
	}
}

func (r *Runner) markDone() {
	r.mu.Lock()
	if r.cur != nil {
		r.cur.Done = true
	}
	r.mu.Unlock()
}

func (r *Runner) fail(log logx.Logger, out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}
	log.Debug("collector run failed", logx.String("program", out.Program), logx.Err(err))
	return out
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
