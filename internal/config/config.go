// Package config loads the application configuration from a YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mailforge/bulksender/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Redis    RedisConfig          `yaml:"redis"`
	Sending  SendingConfig        `yaml:"sending"`
	Logging  LoggingConfig        `yaml:"logging"`
	Accounts []domain.MailAccount `yaml:"accounts"`
}

// ServerConfig holds the HTTP control-plane settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the optional Postgres connection. An empty URL
// selects the in-memory repository.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional redis connection used for per-account
// send caps. An empty address disables cap enforcement.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SendingConfig holds the campaign-level delivery defaults; individual
// campaigns can override them in their settings.
type SendingConfig struct {
	DelaySeconds   float64 `yaml:"delay_seconds"`
	RandomizeDelay bool    `yaml:"randomize_delay"`
	MaxRetries     int     `yaml:"max_retries"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// LoggingConfig controls log verbosity and PII redaction.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file and applies defaults. A
// missing file yields a default configuration rather than an error, so the
// binary runs with zero setup.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Sending.DelaySeconds == 0 {
		cfg.Sending.DelaySeconds = 5
	}
	if cfg.Sending.MaxRetries == 0 {
		cfg.Sending.MaxRetries = 3
	}
	if cfg.Sending.TimeoutSeconds == 0 {
		cfg.Sending.TimeoutSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].TimeoutSeconds == 0 {
			cfg.Accounts[i].TimeoutSeconds = cfg.Sending.TimeoutSeconds
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first if one is present, so secrets can live in
// .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}
