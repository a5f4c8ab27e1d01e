// Package settings persists the user-facing schedule settings: the interval as
// hours/minutes/seconds, the target directory and the optional usage threshold.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sysmonitor/internal/schedule"
)

var (
	ErrOutOfRange = errors.New("setting out of range")
	// ErrIntervalTooShort is returned when hours and minutes are zero and seconds is below the floor.
	ErrIntervalTooShort = schedule.ErrIntervalTooShort
)

const (
	DefaultHours   = 0
	DefaultMinutes = 0
	DefaultSeconds = 15
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Values mirrors the persisted keys one to one.
type Values struct {
	Hours           int    `json:"hours" validate:"gte=0,lte=999"`
	Minutes         int    `json:"minutes" validate:"gte=0,lte=59"`
	Seconds         int    `json:"seconds" validate:"gte=0,lte=59"`
	TargetDirectory string `json:"target_directory"`
	UsageThreshold  int    `json:"usageThreshold" validate:"gte=0,lte=100"`
	LogUsageChecked bool   `json:"logUsageChecked"`
}

func Defaults() Values {
	return Values{Hours: DefaultHours, Minutes: DefaultMinutes, Seconds: DefaultSeconds}
}

// Validate checks field ranges and the interval floor.
func (v Values) Validate(floor time.Duration) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s=%v (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrOutOfRange, strings.Join(parts, ", "))
		}
		return fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	return schedule.CheckFloor(v.Hours, v.Minutes, v.Seconds, floor)
}

// Interval is the post-completion delay the values describe.
func (v Values) Interval() time.Duration {
	return schedule.HMS(v.Hours, v.Minutes, v.Seconds)
}

// Threshold is the effective usage threshold: zero unless usage logging is checked.
func (v Values) Threshold() int {
	if !v.LogUsageChecked {
		return 0
	}
	return v.UsageThreshold
}

// Resolve turns the values into a scheduler config. A hand-edited store that
// violates the floor is clamped rather than rejected; clamped reports that.
func (v Values) Resolve(floor time.Duration) (cfg schedule.Config, clamped bool) {
	secs, clamped := schedule.ClampFloor(v.Hours, v.Minutes, v.Seconds, floor)
	return schedule.Config{
		Interval:        schedule.HMS(v.Hours, v.Minutes, secs),
		TargetDirectory: v.TargetDirectory,
		UsageThreshold:  v.Threshold(),
	}, clamped
}

// Reset restores the default interval and clears the directory. The threshold
// fields are left alone.
func (v Values) Reset() Values {
	v.Hours, v.Minutes, v.Seconds = DefaultHours, DefaultMinutes, DefaultSeconds
	v.TargetDirectory = ""
	return v
}
