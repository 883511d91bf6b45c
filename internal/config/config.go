package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Portainer client selection modes.
const (
	PortainerModeAuto = "auto" // real when configured, mock otherwise
	PortainerModeReal = "real"
	PortainerModeMock = "mock"
)

// Config holds all configuration for the server binary. Values come
// from environment variables prefixed APPBRIDGE_, with an optional
// .env file for local development.
type Config struct {
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	CacheDir string `mapstructure:"CACHE_DIR"`
	DataDir  string `mapstructure:"DATA_DIR"`

	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
	FetchTimeout    time.Duration `mapstructure:"FETCH_TIMEOUT"`
	SyncConcurrency int           `mapstructure:"SYNC_CONCURRENCY"`

	DBType             string `mapstructure:"DB_TYPE"`
	DBConnectionString string `mapstructure:"DB_CONNECTION_STRING"`

	PortainerMode       string `mapstructure:"PORTAINER_MODE"`
	PortainerBaseURL    string `mapstructure:"PORTAINER_BASE_URL"`
	PortainerAPIKey     string `mapstructure:"PORTAINER_API_KEY"`
	PortainerEndpointID int    `mapstructure:"PORTAINER_ENDPOINT_ID"`
	PortainerVerifySSL  bool   `mapstructure:"PORTAINER_VERIFY_SSL"`

	// Repositories is a JSON array seeding the source table on first
	// start, e.g. [{"name":"main","url":"https://...","branch":"main"}].
	Repositories string `mapstructure:"REPOSITORIES"`
}

// SeedSource is one entry of the REPOSITORIES seed list.
type SeedSource struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Branch   string `json:"branch"`
	Priority int    `json:"priority"`
}

// Load reads configuration from the environment and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_DIR", "./cache")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SYNC_INTERVAL", "1h")
	v.SetDefault("FETCH_TIMEOUT", "5m")
	v.SetDefault("SYNC_CONCURRENCY", 4)
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("PORTAINER_MODE", PortainerModeAuto)
	v.SetDefault("PORTAINER_ENDPOINT_ID", 1)
	v.SetDefault("PORTAINER_VERIFY_SSL", true)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // .env is optional

	v.SetEnvPrefix("APPBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	switch cfg.PortainerMode {
	case PortainerModeAuto, PortainerModeReal, PortainerModeMock:
	default:
		return nil, fmt.Errorf("PORTAINER_MODE must be auto, real or mock, got %q", cfg.PortainerMode)
	}
	if cfg.PortainerMode == PortainerModeReal && (cfg.PortainerBaseURL == "" || cfg.PortainerAPIKey == "") {
		return nil, errors.New("PORTAINER_MODE=real requires PORTAINER_BASE_URL and PORTAINER_API_KEY")
	}

	switch cfg.DBType {
	case "sqlite":
	case "postgres":
		if cfg.DBConnectionString == "" {
			return nil, errors.New("DB_TYPE=postgres requires DB_CONNECTION_STRING")
		}
	default:
		return nil, fmt.Errorf("DB_TYPE must be sqlite or postgres, got %q", cfg.DBType)
	}

	if cfg.SyncInterval < 0 {
		return nil, errors.New("SYNC_INTERVAL must not be negative")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, errors.New("FETCH_TIMEOUT must be positive")
	}
	if cfg.SyncConcurrency <= 0 {
		return nil, errors.New("SYNC_CONCURRENCY must be positive")
	}

	return &cfg, nil
}

// SeedSources parses the REPOSITORIES JSON list. An empty value yields
// an empty list, not an error.
func (c *Config) SeedSources() ([]SeedSource, error) {
	trimmed := strings.TrimSpace(c.Repositories)
	if trimmed == "" {
		return nil, nil
	}

	var seeds []SeedSource
	if err := json.Unmarshal([]byte(trimmed), &seeds); err != nil {
		return nil, fmt.Errorf("REPOSITORIES must be a JSON array: %w", err)
	}
	for i, seed := range seeds {
		if seed.Name == "" || seed.URL == "" {
			return nil, fmt.Errorf("REPOSITORIES entry %d is missing name or url", i)
		}
		if seed.Branch == "" {
			seeds[i].Branch = "main"
		}
	}
	return seeds, nil
}
