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

	applyDefaults(&cfg)

	if cfg.Sale.ID == "" {
		return nil, fmt.Errorf("sale.id is required")
	}
	if cfg.Sale.MaxParticipant < cfg.Sale.MinParticipant {
		return nil, fmt.Errorf("sale.max_participant %d is below sale.min_participant %d",
			cfg.Sale.MaxParticipant, cfg.Sale.MinParticipant)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 10
	}
	if cfg.Retry.Wait == 0 {
		cfg.Retry.Wait = 500 * time.Millisecond
	}
	if cfg.Retry.HighLoadThreshold == 0 {
		cfg.Retry.HighLoadThreshold = 6
	}
	if cfg.Sale.CollectionOwner == "" {
		cfg.Sale.CollectionOwner = "sale-collection"
	}
}
