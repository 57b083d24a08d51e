package slackrelay

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Dedup backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the configuration for a Bridge. Field tags name the koanf
// keys used by the config package.
type Config struct {
	Server    ServerConfig    `json:"server" koanf:"server"`
	Slack     SlackConfig     `json:"slack" koanf:"slack"`
	Forward   ForwardConfig   `json:"forward" koanf:"forward"`
	Dedup     DedupConfig     `json:"dedup" koanf:"dedup"`
	Redis     RedisConfig     `json:"redis" koanf:"redis"`
	DLQ       DLQConfig       `json:"dlq" koanf:"dlq"`
	Alerts    AlertsConfig    `json:"alerts" koanf:"alerts"`
	Cron      CronConfig      `json:"cron" koanf:"cron"`
	Telemetry TelemetryConfig `json:"telemetry" koanf:"telemetry"`
	Log       LogConfig       `json:"log" koanf:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `json:"port" koanf:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" koanf:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" koanf:"shutdown_timeout" validate:"gt=0"`
}

// SlackConfig configures inbound verification.
type SlackConfig struct {
	SigningSecret string        `json:"-" koanf:"signing_secret" validate:"required"`
	Tolerance     time.Duration `json:"tolerance" koanf:"tolerance" validate:"gt=0"`
}

// ForwardConfig configures the downstream target and retry policy.
type ForwardConfig struct {
	// URL is the downstream base URL. Empty means forwards abort.
	URL string `json:"url" koanf:"url" validate:"omitempty,url"`

	// Secret is sent as the "internal" query parameter.
	Secret string `json:"-" koanf:"secret"`

	RequestTimeout time.Duration `json:"request_timeout" koanf:"request_timeout" validate:"gt=0"`
	MaxRetries     int           `json:"max_retries" koanf:"max_retries" validate:"min=0,max=10"`
	BackoffStep    time.Duration `json:"backoff_step" koanf:"backoff_step" validate:"gt=0"`
	BackoffCap     time.Duration `json:"backoff_cap" koanf:"backoff_cap" validate:"gtefield=BackoffStep"`

	// RatePerSecond throttles sends per downstream host. 0 is unlimited.
	RatePerSecond int `json:"rate_per_second" koanf:"rate_per_second" validate:"min=0"`
}

// DedupConfig configures action suppression.
type DedupConfig struct {
	Window  time.Duration `json:"window" koanf:"window" validate:"gt=0"`
	Backend string        `json:"backend" koanf:"backend" validate:"oneof=memory redis"`
}

// RedisConfig configures the shared backend.
type RedisConfig struct {
	URL string `json:"-" koanf:"url"`
}

// DLQConfig configures the dead-letter record.
type DLQConfig struct {
	Enabled    bool `json:"enabled" koanf:"enabled"`
	MaxEntries int  `json:"max_entries" koanf:"max_entries" validate:"min=1"`
}

// AlertsConfig configures operator alerts.
type AlertsConfig struct {
	Enabled    bool   `json:"enabled" koanf:"enabled"`
	WebhookURL string `json:"-" koanf:"webhook_url" validate:"omitempty,url"`
	Env        string `json:"env" koanf:"env"`
}

// CronConfig guards the periodic-trigger passthrough.
type CronConfig struct {
	// Token, when set, must be sent in X-Cron-Token.
	Token string `json:"-" koanf:"token"`
}

// TelemetryConfig toggles tracing and metrics.
type TelemetryConfig struct {
	Tracing bool `json:"tracing" koanf:"tracing"`
	Metrics bool `json:"metrics" koanf:"metrics"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `json:"level" koanf:"level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a Config with sensible defaults. The signing
// secret has no default.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Slack: SlackConfig{
			Tolerance: 5 * time.Minute,
		},
		Forward: ForwardConfig{
			RequestTimeout: 25 * time.Second,
			MaxRetries:     3,
			BackoffStep:    3 * time.Second,
			BackoffCap:     9 * time.Second,
		},
		Dedup: DedupConfig{
			Window:  90 * time.Second,
			Backend: BackendMemory,
		},
		DLQ: DLQConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
		Alerts: AlertsConfig{
			Env: "unknown",
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks presence, ranges and URL format (forward.url and
// alerts.webhook_url must parse when set). A missing signing secret is
// reported as ErrNoSigningSecret; other failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Slack.SigningSecret == "" {
		return ErrNoSigningSecret
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Dedup.Backend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("%w: dedup backend redis needs redis.url", ErrInvalidConfig)
	}
	return nil
}
