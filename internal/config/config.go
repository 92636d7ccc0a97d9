// Package config loads gasportal settings from GASPORTAL_* environment
// variables, after applying a local .env file when one exists.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/dukerupert/gasportal/internal/api"
)

const Prefix = "GASPORTAL_"

type Mode string

const (
	// ModeMock fabricates logins and accepts submissions without calling the backend.
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

type Config struct {
	Port      string `env:"PORT, default=8080"`
	DBPath    string `env:"DB_PATH, default=gasportal.db"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=text"`
	Mode      Mode   `env:"MODE, default=mock"`

	APIBaseURL string `env:"API_BASE_URL"`
	// APITimeout of zero leaves outbound calls bounded only by the request context.
	APITimeout time.Duration `env:"API_TIMEOUT, default=0s"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=33554432"`
	CookieSecure   bool  `env:"COOKIE_SECURE, default=false"`
}

// Live reports whether the portal talks to the backend.
func (c *Config) Live() bool {
	return c.Mode == ModeLive
}

// BaseURL returns the configured API base URL or the default.
func (c *Config) BaseURL() string {
	if c.APIBaseURL == "" {
		return api.DefaultBaseURL
	}
	return c.APIBaseURL
}

// Load applies .env (if present) to the process environment and parses it.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeMock, ModeLive:
	default:
		return fmt.Errorf("%sMODE must be %q or %q, got %q", Prefix, ModeMock, ModeLive, c.Mode)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%sMAX_UPLOAD_BYTES must be positive", Prefix)
	}
	if c.APITimeout < 0 {
		return fmt.Errorf("%sAPI_TIMEOUT must not be negative", Prefix)
	}
	return nil
}
