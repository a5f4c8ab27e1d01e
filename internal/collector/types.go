package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound means the program path did not resolve to an executable.
	ErrNotFound = errors.New("collector executable not found")
	// ErrStart means the OS refused to create the process.
	ErrStart = errors.New("collector process start failed")
	// ErrTimeout means the run exceeded Config.RunTimeout and was killed.
	ErrTimeout = errors.New("collector run timed out")
	// ErrAbandoned means the caller's context ended while the run was still in flight.
	// The process is left running.
	ErrAbandoned = errors.New("collector run abandoned")
)

// Priority selects the scheduling class requested for a launched collector.
type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityNormal  Priority = "normal"
)

// ParsePriority accepts "highest"/"realtime", "high", "normal"/"none"; empty means highest.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "highest", "realtime":
		return PriorityHighest, nil
	case "high":
		return PriorityHigh, nil
	case "normal", "none", "off":
		return PriorityNormal, nil
	default:
		return "", fmt.Errorf("invalid priority %q (use highest, high or normal)", s)
	}
}

// Config controls how the runner launches and supervises one collector process.
type Config struct {
	Priority Priority

	// RunTimeout kills a run that takes longer. 0 waits forever.
	RunTimeout time.Duration

	// OutputPath, when set, receives the child's stdout and stderr (appended).
	OutputPath string
}

type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Launch.
//
// Any process exit counts as StatusSuccess; ExitCode is kept for diagnostics only.
// StatusFailed is reserved for runs that could not be started (or timed out / were abandoned).
type Outcome struct {
	RunID      string
	Status     Status
	Err        error
	Program    string
	Args       []string
	PID        int
	ExitCode   int // -1 when the process never exited normally
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether the run counts as a success.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Reason returns the failure reason, or "" for a successful run.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// RunHandle describes the in-flight run. It is discarded once the process exits.
type RunHandle struct {
	ID        string
	PID       int
	StartedAt time.Time
	Done      bool
}
