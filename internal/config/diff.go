package config

import (
	"reflect"
	"sort"
	"strings"

	logx "sysmonitor/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging (never includes the bot token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Collector, newCfg.Collector) {
		changed = append(changed, "collector")
		attrs = append(attrs,
			logx.String("collector.program", strings.TrimSpace(newCfg.Collector.Program)),
			logx.String("collector.priority", strings.TrimSpace(newCfg.Collector.Priority)),
			logx.String("collector.run_timeout", strings.TrimSpace(newCfg.Collector.RunTimeout)),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.floor", strings.TrimSpace(newCfg.Schedule.Floor)),
			logx.String("schedule.settings_path", strings.TrimSpace(newCfg.Schedule.SettingsPath)),
			logx.String("schedule.cron", strings.TrimSpace(newCfg.Schedule.Cron)),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.retention", nS.Retention),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int64("telegram.log_chat_id", newCfg.Telegram.LogChatID),
		)
	}

	if oldCfg.App != newCfg.App {
		changed = append(changed, "app")
		attrs = append(attrs, logx.String("app.shutdown_grace", strings.TrimSpace(newCfg.App.ShutdownGrace)))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a restart.
// Logging is applied live; everything else is wired once at boot.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}
