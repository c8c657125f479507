package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ruleflow/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats:
  url: nats://queue:4222
database:
  driver: postgres
  dsn: postgres://ruleflow@db/ruleflow
engine:
  workers: 16
logging:
  level: debug
  format: text
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://queue:4222", cfg.NATS.URL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 16, cfg.Engine.Workers)
	// untouched keys keep defaults
	assert.Equal(t, 256, cfg.Engine.QueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RULEFLOW_NATS_URL", "nats://env:4222")
	t.Setenv("RULEFLOW_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing nats url", func(c *Config) { c.NATS.URL = "" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
