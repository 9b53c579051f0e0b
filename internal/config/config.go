// Package config loads Application Manager runtime configuration from a
// .env file, environment variables, and CLI overrides, in that order of
// increasing priority.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every knob spec.md §6/§7 lists as affecting core
// behavior. Field names follow the spec's option names; defaults match
// the values given there.
type Config struct {
	// Request controller
	ThreadPoolSize             int           `env:"THREAD_POOL_SIZE" envDefault:"2"`
	PendingRequestsAmount      int           `env:"PENDING_REQUESTS_AMOUNT" envDefault:"0"`
	AppTimeScale               time.Duration `env:"APP_TIME_SCALE" envDefault:"0s"`
	AppTimeScaleMaxRequests    int           `env:"APP_TIME_SCALE_MAX_REQUESTS" envDefault:"0"`
	AppHMILevelNoneTimeScale   time.Duration `env:"APP_HMI_LEVEL_NONE_TIME_SCALE" envDefault:"10s"`
	AppHMILevelNoneMaxRequests int           `env:"APP_HMI_LEVEL_NONE_TIME_SCALE_MAX_REQUESTS" envDefault:"100"`
	DefaultTimeoutMS           uint32        `env:"DEFAULT_TIMEOUT_MS" envDefault:"10000"`
	HeartBeatTimeout           time.Duration `env:"HEART_BEAT_TIMEOUT" envDefault:"0s"`

	// Resumption controller
	AppResumptionSaveTimeout time.Duration `env:"APP_RESUMPTION_SAVE_PERSISTENT_DATA_TIMEOUT" envDefault:"10s"`
	AppResumingTimeout       time.Duration `env:"APP_RESUMING_TIMEOUT" envDefault:"3s"`
	ResumptionDelayBeforeIgn time.Duration `env:"RESUMPTION_DELAY_BEFORE_IGN" envDefault:"30s"`
	ResumptionDelayAfterIgn  time.Duration `env:"RESUMPTION_DELAY_AFTER_IGN" envDefault:"30s"`
	HashStringSize           int           `env:"HASH_STRING_SIZE" envDefault:"32"`
	IsMixingAudioSupported   bool          `env:"IS_MIXING_AUDIO_SUPPORTED" envDefault:"false"`

	// Resumption storage backend
	UseDBForResumption bool   `env:"USE_DB_FOR_RESUMPTION" envDefault:"false"`
	ResumptionJSONPath string `env:"RESUMPTION_JSON_PATH" envDefault:"./resumption.json"`
	DatabaseURL        string `env:"DATABASE_URL"`
	EmbeddedPostgres   bool   `env:"EMBEDDED_POSTGRES" envDefault:"true"`

	// Admin/introspection HTTP surface
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8090"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	AuthToken      string        `env:"AUTH_TOKEN"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins    string        `env:"CORS_ORIGINS"`
	MetricsEnabled bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// Message-router simulator (integration test / demo harness only)
	MQTTBrokerAddr string `env:"MQTT_BROKER_ADDR" envDefault:":1883"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
}

// Load reads .env (if present), then environment variables, then applies
// CLI overrides.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	return cfg, nil
}

// Validate checks invariants Load cannot express as struct tags.
func (c *Config) Validate() error {
	if c.ThreadPoolSize <= 0 {
		return fmt.Errorf("THREAD_POOL_SIZE must be positive, got %d", c.ThreadPoolSize)
	}
	if c.UseDBForResumption && !c.EmbeddedPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("USE_DB_FOR_RESUMPTION requires DATABASE_URL when EMBEDDED_POSTGRES is disabled")
	}
	return nil
}
