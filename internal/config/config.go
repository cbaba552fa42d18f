// Package config loads application configuration from YAML and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Queue     QueueConfig     `koanf:"queue"`
	Weather   WeatherConfig   `koanf:"weather"`
	Narrative NarrativeConfig `koanf:"narrative"`
	Email     EmailConfig     `koanf:"email"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	CORS      CORSConfig      `koanf:"cors"`
	Webhook   WebhookConfig   `koanf:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QueueConfig holds report queue coordinator settings.
type QueueConfig struct {
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	ItemThrottle time.Duration `koanf:"item_throttle"`
	MaxRetries   int           `koanf:"max_retries"`
	// StaleClaimAge must comfortably exceed the worst-case attempt
	// duration; items stuck in processing longer than this are requeued.
	StaleClaimAge time.Duration `koanf:"stale_claim_age"`
}

// WeatherConfig holds the weather gateway settings.
type WeatherConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	HistoricalDays int           `koanf:"historical_days"`
	ForecastDays   int           `koanf:"forecast_days"`
	Cache          CacheConfig   `koanf:"cache"`
}

// CacheConfig holds the optional redis response cache settings.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Addr    string        `koanf:"addr"`
	TTL     time.Duration `koanf:"ttl"`
}

// NarrativeConfig holds the text-generation gateway settings.
type NarrativeConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	Temperature float64       `koanf:"temperature"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Enabled      bool          `koanf:"enabled"`
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	SendRetries  int           `koanf:"send_retries"`
	SendBackoff  time.Duration `koanf:"send_backoff"`
}

// ScheduleConfig holds the cron enqueue settings for periodic reports.
type ScheduleConfig struct {
	Enabled bool   `koanf:"enabled"`
	Spec    string `koanf:"spec"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// WebhookConfig holds webhook rate limiting settings.
type WebhookConfig struct {
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

const envPrefix = "FIELDREPORT_"

// Load reads configuration from the optional YAML file at path, overlays
// FIELDREPORT_* environment variables (FIELDREPORT_SERVER_PORT=8080 maps to
// server.port) and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			Migrate:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Queue: QueueConfig{
			BatchSize:     10,
			PollInterval:  5 * time.Minute,
			ItemThrottle:  time.Second,
			MaxRetries:    3,
			StaleClaimAge: 30 * time.Minute,
		},
		Weather: WeatherConfig{
			BaseURL:        "https://api.open-meteo.com/v1",
			Timeout:        10 * time.Second,
			HistoricalDays: 7,
			ForecastDays:   7,
			Cache: CacheConfig{
				Addr: "localhost:6379",
				TTL:  30 * time.Minute,
			},
		},
		Narrative: NarrativeConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxRetries:  2,
			Temperature: 0.4,
		},
		Email: EmailConfig{
			SMTPPort:    587,
			SendRetries: 2,
			SendBackoff: 3 * time.Second,
		},
		Schedule: ScheduleConfig{
			Spec: "0 6 * * 1",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Webhook: WebhookConfig{
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("email.smtp_host is required when email is enabled")
		}
		if c.Email.FromAddress == "" {
			return fmt.Errorf("email.from_address is required when email is enabled")
		}
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	return nil
}
