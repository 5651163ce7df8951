// Package config provides configuration loading for unixlink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Role identifies which side of the channel a Linker plays.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return RoleServer, nil
	case "client":
		return RoleClient, nil
	default:
		return "", fmt.Errorf("invalid role: %q (must be 'server' or 'client')", s)
	}
}

// Marker returns the single-character wire prefix for events sent by this role.
func (r Role) Marker() string {
	if r == RoleServer {
		return "s"
	}
	return "c"
}

// Opposite returns the peer role.
func (r Role) Opposite() Role {
	if r == RoleServer {
		return RoleClient
	}
	return RoleServer
}

// Config is the root linker configuration. It is a plain value object: a
// Linker takes one at construction and no package keeps mutable globals.
type Config struct {
	// Role is optional here; it can also be supplied later via Linker.Init.
	Role string `mapstructure:"role"`

	// Channel is the rendezvous name shared by both peers.
	Channel string `mapstructure:"channel"`

	// Debug enables diagnostic logging on the Linker.
	Debug bool `mapstructure:"debug"`

	// ContentType selects the wire codec. application/json is the
	// cross-implementation default; application/cbor requires both peers
	// to be configured identically.
	ContentType string `mapstructure:"content_type"`

	// Retry controls the client connect backoff.
	Retry RetryConfig `mapstructure:"retry"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`
}

// RetryConfig defines the client-side connect retry policy.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		ContentType: "application/json",
		Retry: RetryConfig{
			MaxAttempts:    10,
			InitialBackoff: 100 * time.Millisecond,
			Multiplier:     1.5,
			MaxBackoff:     2 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/unixlink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides. A .env
// file in the working directory is loaded first, best-effort. Environment
// variables use the prefix UNIXLINK and `.`/`-` are replaced with `_`.
// Example: UNIXLINK_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UNIXLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("role", cfg.Role)
	v.SetDefault("channel", cfg.Channel)
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("content_type", cfg.ContentType)
	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", cfg.Retry.InitialBackoff)
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)
	v.SetDefault("retry.max_backoff", cfg.Retry.MaxBackoff)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		if envPath := os.Getenv("UNIXLINK_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("unixlink")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".unixlink"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes the config in place and reports the first problem.
func (c *Config) Validate() error {
	if c.Role != "" {
		r, err := ParseRole(c.Role)
		if err != nil {
			return err
		}
		c.Role = string(r)
	}

	switch strings.ToLower(strings.TrimSpace(c.ContentType)) {
	case "", "application/json":
		c.ContentType = "application/json"
	case "application/cbor":
		c.ContentType = "application/cbor"
	default:
		return fmt.Errorf("invalid content_type: %q", c.ContentType)
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = 100 * time.Millisecond
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 1.5
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		c.Retry.MaxBackoff = 2 * time.Second
	}

	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "", "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
