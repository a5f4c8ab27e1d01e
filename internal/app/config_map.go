package app

import (
	"strings"
	"time"

	"sysmonitor/internal/collector"
	"sysmonitor/internal/config"
	"sysmonitor/internal/schedule"
	"sysmonitor/internal/settings"
	"sysmonitor/internal/storage"
	logx "sysmonitor/pkg/logx"
)

const defaultShutdownGrace = 2 * time.Second

// LogConfig maps the logging section (plus the Telegram log chat) to logx.
func LogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// CollectorCommand overlays the collector section on DefaultCommand.
func CollectorCommand(cfg *config.Config) collector.Command {
	cmd := collector.DefaultCommand()
	c := cfg.Collector
	if p := strings.TrimSpace(c.Program); p != "" {
		cmd.Program = p
	}
	if c.Args != nil {
		cmd.Args = c.Args
	}
	if c.Script != "" {
		cmd.Script = c.Script
	}
	if c.ScriptFlag != "" {
		cmd.ScriptFlag = c.ScriptFlag
	}
	if c.DirFlag != "" {
		cmd.DirFlag = c.DirFlag
	}
	if c.ThresholdFlag != "" {
		cmd.ThresholdFlag = c.ThresholdFlag
	}
	cmd.ResourceDir = c.ResourceDir
	return cmd
}

func RunnerConfig(cfg *config.Config) (collector.Config, error) {
	prio, err := collector.ParsePriority(cfg.Collector.Priority)
	if err != nil {
		return collector.Config{}, err
	}
	timeout, err := config.ParseDurationField("collector.run_timeout", cfg.Collector.RunTimeout)
	if err != nil {
		return collector.Config{}, err
	}
	return collector.Config{
		Priority:   prio,
		RunTimeout: timeout,
		OutputPath: strings.TrimSpace(cfg.Collector.OutputPath),
	}, nil
}

// SettingsStore opens the settings file named by schedule.settings_path.
func SettingsStore(cfg *config.Config, log logx.Logger) (*settings.Store, error) {
	floor, err := schedule.ParseFloor(cfg.Schedule.Floor)
	if err != nil {
		return nil, err
	}
	return settings.NewStore(strings.TrimSpace(cfg.Schedule.SettingsPath), settings.Options{Floor: floor, Log: log}), nil
}

// StorageConfig maps the storage section. enabled is false when it is absent or "none".
func StorageConfig(cfg *config.Config) (sc storage.Config, enabled bool, err error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	s := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(s.Path),
		BusyTimeout: busy,
		Retention:   s.Retention,
	}, true, nil
}

func shutdownGrace(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("app.shutdown_grace", cfg.App.ShutdownGrace, defaultShutdownGrace)
	if err != nil {
		return defaultShutdownGrace
	}
	return d
}

// RunRecord converts a finished run for the history store.
func RunRecord(cycle uint64, out collector.Outcome) storage.RunRecord {
	r := storage.RunRecord{
		RunID:      out.RunID,
		Cycle:      cycle,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		Program:    out.Program,
		Args:       out.Args,
		PID:        out.PID,
		Status:     out.Status.String(),
		ExitCode:   out.ExitCode,
		TookMS:     out.Duration().Milliseconds(),
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}
	return r
}
