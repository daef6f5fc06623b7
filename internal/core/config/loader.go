package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Sentry.QueueCapacity == 0 {
		cfg.Sentry.QueueCapacity = 128
	}
	if cfg.Download.MaxSlices == 0 {
		cfg.Download.MaxSlices = 64
	}
	if cfg.Download.RetryTimeout == 0 {
		cfg.Download.RetryTimeout = 30 * time.Second
	}
	if cfg.Download.RetryInterval == 0 {
		cfg.Download.RetryInterval = 5 * time.Second
	}

	if cfg.Sentry.Endpoint == "" {
		return nil, fmt.Errorf("sentry.endpoint is required")
	}

	return &cfg, nil
}
