package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "igbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "!", cfg.Modules.Prefix)
	assert.Equal(t, 8642, cfg.Gateway.Port)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
username: botacct
log_level: debug
modules:
  prefix: "."
gateway:
  enabled: true
  port: 9001
scheduler:
  jobs:
    - name: morning
      cron: "0 9 * * *"
      chat_id: "thread-1"
      text: "good morning"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "botacct", cfg.Username)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ".", cfg.Modules.Prefix)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, 9001, cfg.Gateway.Port)
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, "morning", cfg.Scheduler.Jobs[0].Name)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
gateway:
  port: 9001
`)
	t.Setenv("IGBOT_LOG_LEVEL", "warn")
	t.Setenv("IGBOT_GATEWAY_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.Gateway.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.Modules.Prefix = "" }},
		{"port out of range", func(c *Config) { c.Gateway.Port = 0 }},
		{"zero media timeout", func(c *Config) { c.Media.TimeoutSeconds = 0 }},
		{"job without cron", func(c *Config) {
			c.Scheduler.Jobs = []JobConfig{{Name: "bad", ChatID: "t1"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
