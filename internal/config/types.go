package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Pipeline  PipelineConfig  `json:"pipeline,omitempty"`
	Store     StoreConfig     `json:"store"`
	Sinks     SinksConfig     `json:"sinks,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HTTPConfig controls the operational HTTP surface (/health, /targets).
//
// Security note: prefer binding to localhost; the surface carries target
// configuration, which is not secret but is not public either.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8787"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// SchedulerConfig controls the poll trigger.
type SchedulerConfig struct {
	// Spec is a cron expression (5 or 6 fields) or descriptor ("@hourly").
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
}

// PipelineConfig controls run execution.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1 (strict sequential target processing)
type PipelineConfig struct {
	Workers int `json:"workers,omitempty"`
}

// StoreConfig selects the KV backend holding targets, sinks and dedup
// state. The redis password comes from the environment, never from here.
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	Addr        string `json:"addr,omitempty"` // redis
	DB          int    `json:"db,omitempty"`   // redis
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SinksConfig carries per-channel delivery budgets. Channel tokens come
// from the environment (LINE_CHANNEL_TOKEN, TELEGRAM_BOT_TOKEN); a channel
// without its token is simply not wired.
type SinksConfig struct {
	Line     LineSink     `json:"line,omitempty"`
	Webhook  WebhookSink  `json:"webhook,omitempty"`
	Telegram TelegramSink `json:"telegram,omitempty"`
}

type LineSink struct {
	RetryMax int    `json:"retry_max,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type WebhookSink struct {
	RetryMax   int    `json:"retry_max,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type TelegramSink struct {
	Enabled bool `json:"enabled,omitempty"`
}
