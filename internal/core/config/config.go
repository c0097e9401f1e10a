package config

import (
	"fmt"
	"time"

	"github.com/quangdm/partake/internal/infra/postgres"
	redisclient "github.com/quangdm/partake/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Sale     SaleConfig         `yaml:"sale"`
	Retry    RetryConfig        `yaml:"retry"`
	Accounts []AccountConfig    `yaml:"accounts"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SaleConfig holds the client-known parameters of the sale round. All
// amounts are unsigned integers in the smallest token denomination.
type SaleConfig struct {
	ID              string `yaml:"id"`
	MinParticipant  uint64 `yaml:"min_participant"`
	MaxParticipant  uint64 `yaml:"max_participant"`
	Fee             uint64 `yaml:"fee"`
	CollectionOwner string `yaml:"collection_owner"`
}

// RetryConfig tunes the poll engine for every network step.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	Wait              time.Duration `yaml:"wait"`
	HighLoadThreshold int           `yaml:"high_load_threshold"`
}

// UnmarshalYAML decodes the wait field from a duration string such as
// "500ms", which the yaml package has no native decoding for.
func (r *RetryConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		MaxAttempts       int    `yaml:"max_attempts"`
		Wait              string `yaml:"wait"`
		HighLoadThreshold int    `yaml:"high_load_threshold"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	r.MaxAttempts = raw.MaxAttempts
	r.HighLoadThreshold = raw.HighLoadThreshold
	if raw.Wait != "" {
		d, err := time.ParseDuration(raw.Wait)
		if err != nil {
			return fmt.Errorf("retry.wait: %w", err)
		}
		r.Wait = d
	}
	return nil
}

// AccountConfig seeds a demo-backend account.
type AccountConfig struct {
	Owner   string `yaml:"owner"`
	Balance uint64 `yaml:"balance"`
}
