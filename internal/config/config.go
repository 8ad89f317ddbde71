// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then environment variables. ENV > File > Defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/snakepit/config.yaml",
	"/etc/snakepit/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SNAKEPIT_CONFIG_PATH"

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "SNAKEPIT_"

// Config is the full server configuration.
type Config struct {
	Environment string         `koanf:"environment" validate:"required,oneof=development staging production test"`
	Server      ServerConfig   `koanf:"server"`
	Security    SecurityConfig `koanf:"security"`
	Store       StoreConfig    `koanf:"store"`
	Catalog     CatalogConfig  `koanf:"catalog"`
	Blob        BlobConfig     `koanf:"blob"`
	Backup      BackupConfig   `koanf:"backup"`
	Game        GameConfig     `koanf:"game"`
	Logging     LoggingConfig  `koanf:"logging"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=1"`
}

// SecurityConfig covers authentication.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	AdminUsername     string        `koanf:"admin_username" validate:"required"`
	AdminPasswordHash string        `koanf:"admin_password_hash" validate:"required"`
}

// StoreConfig covers the Badger game store.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// CatalogConfig covers the DuckDB metadata catalog.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// BlobConfig covers backup payload storage.
type BlobConfig struct {
	// Backend selects "gcs" or "memory".
	Backend         string `koanf:"backend" validate:"oneof=gcs memory"`
	Bucket          string `koanf:"bucket" validate:"required_if=Backend gcs"`
	CredentialsFile string `koanf:"credentials_file"`
}

// BackupConfig covers the backup scheduler.
type BackupConfig struct {
	Enabled     bool          `koanf:"enabled"`
	DailyHour   int           `koanf:"daily_hour" validate:"min=0,max=23"`
	WeeklyHour  int           `koanf:"weekly_hour" validate:"min=0,max=23"`
	TickPeriod  time.Duration `koanf:"tick_period"`
	ManualLimit int           `koanf:"manual_limit" validate:"min=1"`
}

// GameConfig covers gameplay housekeeping.
type GameConfig struct {
	RoomMaxIdle     time.Duration `koanf:"room_max_idle"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LoggingConfig covers log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       100,
		},
		Security: SecurityConfig{
			TokenTTL: 12 * time.Hour,
		},
		Store: StoreConfig{
			Path: "data/gamestore",
		},
		Catalog: CatalogConfig{
			Path: "data/catalog.duckdb",
		},
		Blob: BlobConfig{
			Backend: "memory",
		},
		Backup: BackupConfig{
			Enabled:     true,
			DailyHour:   2,
			WeeklyHour:  3,
			TickPeriod:  time.Minute,
			ManualLimit: 10,
		},
		Game: GameConfig{
			RoomMaxIdle:     24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SNAKEPIT_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// SNAKEPIT_SERVER_PORT -> server.port
	// SNAKEPIT_SECURITY_JWT_SECRET -> security.jwt_secret
	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// sections whose names form the first path segment of an env var.
var sections = []string{
	"server", "security", "store", "catalog", "blob", "backup", "game", "logging",
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
