package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"sysmonitor/internal/collector"
	"sysmonitor/internal/schedule"
	logx "sysmonitor/pkg/logx"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a parsed config before it is committed. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := structValidator.Struct(cfg); err != nil {
		errs = append(errs, err)
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if lvl := strings.TrimSpace(cfg.Logging.Telegram.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.telegram.min_level: unknown level %q", lvl))
	}
	if cfg.Logging.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("logging.telegram.enabled requires telegram.token"))
		}
		if cfg.Telegram.LogChatID == 0 {
			errs = append(errs, errors.New("logging.telegram.enabled requires telegram.log_chat_id"))
		}
	}

	if _, err := collector.ParsePriority(cfg.Collector.Priority); err != nil {
		errs = append(errs, fmt.Errorf("collector.priority: %w", err))
	}
	if _, err := ParseDurationField("collector.run_timeout", cfg.Collector.RunTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := schedule.ParseFloor(cfg.Schedule.Floor); err != nil {
		errs = append(errs, fmt.Errorf("schedule.floor: %w", err))
	}
	if expr := strings.TrimSpace(cfg.Schedule.Cron); expr != "" {
		if err := (schedule.Config{Cron: expr}).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}

	if s := cfg.Storage; s != nil {
		switch d := strings.ToLower(strings.TrimSpace(s.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required for driver %q", d))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := ParseDurationField("app.shutdown_grace", cfg.App.ShutdownGrace); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
