// Package config loads and validates the engine's runtime configuration
// from a YAML file, with environment overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/ruleflow/errors"
)

// Config is the complete engine configuration
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NATSConfig configures the shared NATS connection
type NATSConfig struct {
	URL            string        `yaml:"url"`
	ClientName     string        `yaml:"client_name"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DatabaseConfig selects and configures storage
type DatabaseConfig struct {
	// Driver is "postgres" or "memory"
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the metrics/health listener
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig sizes trigger processing and outbound throttling
type EngineConfig struct {
	Workers           int     `yaml:"workers"`
	QueueSize         int     `yaml:"queue_size"`
	ConsumerName      string  `yaml:"consumer_name"`
	WebhookRatePerSec float64 `yaml:"webhook_rate_per_sec"`
	WebhookBurst      int     `yaml:"webhook_burst"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`
	// Format is json or text
	Format string `yaml:"format"`
}

// Default returns a configuration suitable for local development
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ClientName:     "ruleflow",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Engine: EngineConfig{
			Workers:           8,
			QueueSize:         256,
			ConsumerName:      "ruleflow-engine",
			WebhookRatePerSec: 10,
			WebhookBurst:      20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. An empty path returns defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments inject connection secrets without
// writing them into the config file
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RULEFLOW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("RULEFLOW_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RULEFLOW_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RULEFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("nats.url is required"),
			"config", "Validate", "check nats")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.WrapInvalid(fmt.Errorf("database.dsn is required for the postgres driver"),
				"config", "Validate", "check database")
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown database.driver %q", c.Database.Driver),
			"config", "Validate", "check database")
	}
	if c.Engine.Workers <= 0 {
		return errors.WrapInvalid(fmt.Errorf("engine.workers must be positive"),
			"config", "Validate", "check engine")
	}
	if c.Engine.QueueSize <= 0 {
		return errors.WrapInvalid(fmt.Errorf("engine.queue_size must be positive"),
			"config", "Validate", "check engine")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown logging.level %q", c.Logging.Level),
			"config", "Validate", "check logging")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown logging.format %q", c.Logging.Format),
			"config", "Validate", "check logging")
	}
	return nil
}
