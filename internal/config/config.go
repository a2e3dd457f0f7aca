// Package config provides configuration loading for collabd.
//
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. Config file (collabd.yaml, or the path given via --config)
//  3. Environment variables (COLLABD_*)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "collabd.yaml"

// Config holds the collabd server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Database configuration.
	Database DatabaseConfig `yaml:"database"`

	// Auth configuration.
	Auth AuthConfig `yaml:"auth"`

	// Upload configuration.
	Upload UploadConfig `yaml:"upload"`

	// CORSOrigin is the allowed origin for browser clients.
	CORSOrigin string `yaml:"cors_origin"`

	// AIDelay is the simulated processing delay for relay AI requests.
	AIDelay time.Duration `yaml:"ai_delay"`

	// FigmaBaseURL is the upstream design-tool API base.
	FigmaBaseURL string `yaml:"figma_base_url"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string `yaml:"dialect"`
	// DSN is the file path for sqlite or the connection string for postgres.
	DSN string `yaml:"dsn"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// JWTSecret signs bearer tokens. Must be overridden in production.
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL is the bearer token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// Dir is the on-disk upload root.
	Dir string `yaml:"dir"`
	// MaxFileSize is the per-file byte limit.
	MaxFileSize int64 `yaml:"max_file_size"`
	// MaxFiles is the per-request file count limit.
	MaxFiles int `yaml:"max_files"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr: ":4000",
		Database: DatabaseConfig{
			Dialect: "sqlite",
			DSN:     "data/collabd.db",
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
			TokenTTL:  24 * time.Hour,
		},
		Upload: UploadConfig{
			Dir:         "uploads",
			MaxFileSize: 10 << 20, // 10MB
			MaxFiles:    5,
		},
		CORSOrigin:   "*",
		AIDelay:      2 * time.Second,
		FigmaBaseURL: "https://api.figma.com/v1",
	}
}

// Load loads configuration from the default file path if present,
// then applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(ConfigFileName)
}

// LoadFrom loads configuration from the given file path. A missing file
// is not an error; defaults plus environment overrides are returned.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies COLLABD_* environment variable overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("COLLABD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("COLLABD_DB_DIALECT"); v != "" {
		cfg.Database.Dialect = v
	}
	if v := os.Getenv("COLLABD_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("COLLABD_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("COLLABD_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("COLLABD_UPLOAD_DIR"); v != "" {
		cfg.Upload.Dir = v
	}
	if v := os.Getenv("COLLABD_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Upload.MaxFileSize = n
		}
	}
	if v := os.Getenv("COLLABD_CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := os.Getenv("COLLABD_AI_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AIDelay = d
		}
	}
	if v := os.Getenv("COLLABD_FIGMA_BASE_URL"); v != "" {
		cfg.FigmaBaseURL = v
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	switch c.Database.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database dialect %q", c.Database.Dialect)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload max_file_size must be positive")
	}
	if c.Upload.MaxFiles <= 0 {
		return fmt.Errorf("upload max_files must be positive")
	}
	return nil
}
