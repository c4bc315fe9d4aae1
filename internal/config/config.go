// Package config loads service configuration from WILLWE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/willwe-dev/activity"
)

const Prefix = "WILLWE"

type Config struct {
	// Addr is the HTTP listen address of cmd/api
	Addr string `envconfig:"ADDR" default:":3000"`

	// DatabaseDSN is a postgres DSN or a sqlite file path
	DatabaseDSN string `envconfig:"DB_DSN" default:"willwe.db"`

	// EventSourceURL is the base URL of the upstream indexer. Empty disables backfill.
	EventSourceURL string `envconfig:"EVENT_SOURCE_URL"`

	DefaultLimit int           `envconfig:"DEFAULT_LIMIT" default:"50"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	NetworkID    string        `envconfig:"NETWORK_ID" default:"84532"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	// Kafka and GitHub fields are read as WILLWE_KAFKA_* and WILLWE_GITHUB_*
	Kafka  KafkaConfig
	GitHub GitHubConfig
}

type KafkaConfig struct {
	Brokers []string `envconfig:"BROKERS"`
	Topic   string   `envconfig:"TOPIC" default:"willwe.events"`
	GroupID string   `envconfig:"GROUP_ID" default:"willwe-activity"`
}

type GitHubConfig struct {
	Owner string `envconfig:"OWNER" default:"willwe-dev"`
	Repo  string `envconfig:"REPO"`
	Token string `envconfig:"TOKEN"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("%s_DB_DSN is required", Prefix)
	}
	if c.DefaultLimit < 1 || c.DefaultLimit > activity.MaxLimit {
		return fmt.Errorf("default limit must be between 1 and %d, got %d", activity.MaxLimit, c.DefaultLimit)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
