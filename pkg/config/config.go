// Package config loads igbot configuration: built-in defaults, overlaid by a
// YAML file, overlaid by IGBOT_* environment variables. Environment wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// Account credentials. Used only when no persisted session restores.
	Username string `yaml:"username" env:"IGBOT_USERNAME"`
	Password string `yaml:"password" env:"IGBOT_PASSWORD"`

	LogLevel string `yaml:"log_level" env:"IGBOT_LOG_LEVEL"`

	Modules   ModulesConfig   `yaml:"modules"`
	Session   SessionConfig   `yaml:"session"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Console   ConsoleConfig   `yaml:"console"`
	Media     MediaConfig     `yaml:"media"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ModulesConfig configures the command pipeline.
type ModulesConfig struct {
	// Prefix marks command messages, e.g. "!ping".
	Prefix string `yaml:"prefix" env:"IGBOT_COMMAND_PREFIX"`
}

// SessionConfig configures session-blob persistence.
type SessionConfig struct {
	DBPath string `yaml:"db_path" env:"IGBOT_SESSION_DB"`
}

// GatewayConfig configures the local dashboard API server.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled" env:"IGBOT_GATEWAY_ENABLED"`
	Host    string `yaml:"host" env:"IGBOT_GATEWAY_HOST"`
	Port    int    `yaml:"port" env:"IGBOT_GATEWAY_PORT"`
	APIKey  string `yaml:"api_key" env:"IGBOT_API_KEY"`
}

// ConsoleConfig configures the interactive REPL.
type ConsoleConfig struct {
	Enabled       bool   `yaml:"enabled" env:"IGBOT_CONSOLE_ENABLED"`
	DefaultChatID string `yaml:"default_chat_id" env:"IGBOT_CONSOLE_CHAT"`
}

// MediaConfig configures the photo-by-URL fetcher.
type MediaConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds" env:"IGBOT_MEDIA_TIMEOUT"`
	MaxBytes       int64 `yaml:"max_bytes" env:"IGBOT_MEDIA_MAX_BYTES"`
}

// SchedulerConfig configures cron-scheduled sends.
type SchedulerConfig struct {
	Jobs []JobConfig `yaml:"jobs"`
}

// JobConfig is one scheduled send: a cron expression, a target thread, text.
type JobConfig struct {
	Name   string `yaml:"name"`
	Cron   string `yaml:"cron"`
	ChatID string `yaml:"chat_id"`
	Text   string `yaml:"text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Modules:  ModulesConfig{Prefix: "!"},
		Session:  SessionConfig{DBPath: "igbot.db"},
		Gateway:  GatewayConfig{Host: "127.0.0.1", Port: 8642},
		Media:    MediaConfig{TimeoutSeconds: 30, MaxBytes: 8 << 20},
	}
}

// Load builds the configuration. A missing file is not an error: defaults
// plus environment apply. Precedence: env > file > defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Modules.Prefix == "" {
		return fmt.Errorf("config: modules.prefix must not be empty")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Media.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: media.timeout_seconds must be positive")
	}
	for _, job := range c.Scheduler.Jobs {
		if job.Cron == "" || job.ChatID == "" {
			return fmt.Errorf("config: scheduler job %q needs cron and chat_id", job.Name)
		}
	}
	return nil
}

// MediaTimeout returns the fetcher timeout as a duration.
func (c *Config) MediaTimeout() time.Duration {
	return time.Duration(c.Media.TimeoutSeconds) * time.Second
}
