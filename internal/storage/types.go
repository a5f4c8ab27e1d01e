package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention caps the number of kept records; 0 keeps everything.
	Retention int
}

// RunRecord is one finished collector run.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Cycle      uint64    `json:"cycle"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Program    string    `json:"program"`
	Args       []string  `json:"args,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}
