package config

import (
	"time"

	"github.com/wmitsuda/akula/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Sentry   SentryConfig    `yaml:"sentry"`
	Download DownloadConfig  `yaml:"download"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database postgres.Config `yaml:"database"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SentryConfig holds the connection to the sentry process.
type SentryConfig struct {
	Endpoint      string `yaml:"endpoint"`
	QueueCapacity int    `yaml:"queue_capacity"` // outbound send queue size
}

// DownloadConfig holds the header sync settings.
type DownloadConfig struct {
	StartBlock    uint64        `yaml:"start_block"`
	TargetBlock   uint64        `yaml:"target_block"` // 0 = follow the chain indefinitely
	MaxSlices     int           `yaml:"max_slices"`   // window size
	RetryTimeout  time.Duration `yaml:"retry_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
