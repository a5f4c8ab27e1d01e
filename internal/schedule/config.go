package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	ErrAlreadyStarted   = errors.New("scheduler already started")
	ErrStopped          = errors.New("scheduler stopped")
	ErrInvalidConfig    = errors.New("invalid schedule config")
	ErrIntervalTooShort = errors.New("interval below minimum")
)

const (
	// FloorStrict is the minimum seconds value when hours and minutes are both zero.
	FloorStrict = 15 * time.Second
	// FloorRelaxed is the lighter variant of FloorStrict.
	FloorRelaxed = 5 * time.Second
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Config is the snapshot that governs one upcoming cycle. It is always passed and
// stored by value, so later edits of the caller's copy never reach a running cycle.
type Config struct {
	// Interval is the delay between the end of one run and the start of the next.
	Interval time.Duration `json:"interval" validate:"gte=0"`
	// TargetDirectory is handed to the collector; empty means the collector's default.
	TargetDirectory string `json:"target_directory"`
	// UsageThreshold filters collection by resource usage (percent). 0 disables it.
	UsageThreshold int `json:"usage_threshold" validate:"gte=0,lte=100"`
	// Cron, when set, replaces Interval: the delay runs until the next cron tick
	// after the run finished.
	Cron string `json:"cron,omitempty"`
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Interval%time.Second != 0 {
		return fmt.Errorf("%w: interval %s is not a whole number of seconds", ErrInvalidConfig, c.Interval)
	}
	if expr := strings.TrimSpace(c.Cron); expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			return fmt.Errorf("%w: cron %q: %w", ErrInvalidConfig, expr, err)
		}
	}
	return nil
}

// IntervalSeconds returns Interval in whole seconds.
func (c Config) IntervalSeconds() int { return int(c.Interval / time.Second) }

// Delay returns how long to wait after a run that finished at completedAt.
// Cron-derived delays never drop below minimum.
func (c Config) Delay(completedAt time.Time, minimum time.Duration) time.Duration {
	expr := strings.TrimSpace(c.Cron)
	if expr == "" {
		return c.Interval
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return c.Interval
	}
	d := sched.Next(completedAt).Sub(completedAt)
	if d < minimum {
		d = minimum
	}
	return d
}

// HMS converts an hours/minutes/seconds triple to a duration.
func HMS(hours, minutes, seconds int) time.Duration {
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
}

// CheckFloor rejects near-zero intervals: when hours and minutes are both zero,
// seconds must reach floor.
func CheckFloor(hours, minutes, seconds int, floor time.Duration) error {
	if hours != 0 || minutes != 0 {
		return nil
	}
	if time.Duration(seconds)*time.Second < floor {
		return fmt.Errorf("%w: %ds with zero hours and minutes (minimum %s)", ErrIntervalTooShort, seconds, floor)
	}
	return nil
}

// ClampFloor raises seconds to floor when hours and minutes are both zero.
func ClampFloor(hours, minutes, seconds int, floor time.Duration) (int, bool) {
	if CheckFloor(hours, minutes, seconds, floor) == nil {
		return seconds, false
	}
	return int(floor / time.Second), true
}

// ParseFloor accepts "strict", "relaxed" or a Go duration string; empty means strict.
func ParseFloor(raw string) (time.Duration, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "", "strict":
		return FloorStrict, nil
	case "relaxed":
		return FloorRelaxed, nil
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid floor %q (use strict, relaxed or a duration like '10s')", raw)
		}
		if d < 0 || d%time.Second != 0 {
			return 0, fmt.Errorf("floor %q must be a non-negative whole number of seconds", raw)
		}
		return d, nil
	}
}
