package config

// Config is the daemon configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Collector CollectorConfig `json:"collector"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Telegram  TelegramConfig  `json:"telegram"`
	App       AppConfig       `json:"app"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// CollectorConfig describes the external program. Omitted fields fall back to
// the packaged PowerShell script layout.
type CollectorConfig struct {
	Program       string   `json:"program,omitempty"`
	Args          []string `json:"args,omitempty"`
	Script        string   `json:"script,omitempty"`
	ScriptFlag    string   `json:"script_flag,omitempty"`
	DirFlag       string   `json:"dir_flag,omitempty"`
	ThresholdFlag string   `json:"threshold_flag,omitempty"`
	// ResourceDir is where Script is looked up; default is the executable's directory.
	ResourceDir string `json:"resource_dir,omitempty"`

	// Priority is one of highest, high, normal. Default highest.
	Priority string `json:"priority,omitempty"`
	// RunTimeout kills a run that takes longer. "0s" or omitted waits forever.
	RunTimeout string `json:"run_timeout,omitempty"`
	// OutputPath receives the collector's stdout/stderr when set.
	OutputPath string `json:"output_path,omitempty"`
}

type ScheduleConfig struct {
	// Floor is "strict" (15s), "relaxed" (5s) or a duration.
	Floor        string `json:"floor,omitempty"`
	SettingsPath string `json:"settings_path,omitempty"`
	// Cron replaces the fixed interval with "until the next tick" when set.
	Cron string `json:"cron,omitempty"`
}

// StorageConfig controls run history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./sysmonitor.db", "retention": 1000 }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   int    `json:"retention,omitempty" validate:"gte=0"`
}

// TelegramConfig is only used by the Telegram log sink.
type TelegramConfig struct {
	Token     string `json:"token"`
	LogChatID int64  `json:"log_chat_id"`
}

type AppConfig struct {
	// ShutdownGrace bounds how long shutdown waits for goroutines. Default 2s.
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// Default is the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./sysmonitor.log"},
		},
		Schedule: ScheduleConfig{Floor: "strict", SettingsPath: "./settings.json"},
		Storage:  &StorageConfig{Driver: "file", Path: "./sysmonitor_history", Retention: 1000},
		App:      AppConfig{ShutdownGrace: "2s"},
	}
}
