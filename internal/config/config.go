// Package config provides configuration loading and validation for the
// pulsebot service. Values come from defaults, an optional config.yaml,
// and BOT_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// service: logging, HTTP server, database, Telegram, AI summaries, rate
// limiting, and scheduled tasks.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log verbosity and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds settings for the Telegram client used to send
// command replies. The token is optional: without it inbound webhooks are
// still tracked, but no replies are sent.
type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=5m"`
}

// GeminiConfig holds settings for the Gemini client used by the chat
// summary command. The API key is optional: without it the summary command
// is disabled.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"       validate:"required"`
	Temperature       float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Instruction       string        `mapstructure:"instruction" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
	SummaryWindow     int           `mapstructure:"summary_window" validate:"min=1,max=500"`
}

// RateLimitConfig defines the three independent limiter instances. Each
// limiter keeps its own per-key state; being limited on one has no effect
// on another.
type RateLimitConfig struct {
	Command WindowConfig `mapstructure:"command"`
	Summary WindowConfig `mapstructure:"summary"`
	API     WindowConfig `mapstructure:"api"`
}

// WindowConfig is a request budget over a sliding window.
type WindowConfig struct {
	MaxRequests int           `mapstructure:"max_requests" validate:"min=1"`
	Window      time.Duration `mapstructure:"window"       validate:"min=1s"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`

	// RetentionDays bounds the channel message log; rows older than this
	// are pruned by the message_retention task.
	RetentionDays int `mapstructure:"retention_days" validate:"min=1"`
}

// TaskConfig enables a single scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and BOT_* environment variables, then validates the
// result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults and env cover everything.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("telegram.request_timeout", 30*time.Second)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 1.0)
	v.SetDefault("gemini.instruction", "Summarize the recent conversation in a few short paragraphs. Mention the main topics and who drove them. Reply in the language most used in the messages.")
	v.SetDefault("gemini.timeout", 2*time.Minute)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)
	v.SetDefault("gemini.summary_window", 100)

	v.SetDefault("rate_limit.command.max_requests", 5)
	v.SetDefault("rate_limit.command.window", time.Minute)
	v.SetDefault("rate_limit.summary.max_requests", 2)
	v.SetDefault("rate_limit.summary.window", 5*time.Minute)
	v.SetDefault("rate_limit.api.max_requests", 60)
	v.SetDefault("rate_limit.api.window", time.Minute)

	v.SetDefault("scheduler.retention_days", 30)
	v.SetDefault("scheduler.tasks.ratelimit_cleanup.enabled", true)
	v.SetDefault("scheduler.tasks.ratelimit_cleanup.schedule", "0 * * * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.message_retention.enabled", true)
	v.SetDefault("scheduler.tasks.message_retention.schedule", "0 30 4 * * *")
}
