// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package config loads process configuration. Defaults are layered under an
// optional YAML file and command-line flags; the resulting Config is built
// once at startup and passed by reference, never read from globals.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultBcryptCost      = 12
	DefaultStoreTimeout    = 5 * time.Second
	DefaultPurgeInterval   = time.Hour
	DefaultPurgeRetention  = 30 * 24 * time.Hour

	minSigningSecretLen = 32
)

// Config is the process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the listeners.
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// AuthConfig configures the auth subsystem. The signing secret is loaded
// once at process start; the process refuses to start without one.
type AuthConfig struct {
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
	SigningSecret   string        `koanf:"signing_secret"`
	Issuer          string        `koanf:"issuer"`
	Audience        string        `koanf:"audience"`
	PurgeInterval   time.Duration `koanf:"purge_interval"`
	PurgeRetention  time.Duration `koanf:"purge_retention"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:9100",
		},
		Database: DatabaseConfig{
			Timeout: DefaultStoreTimeout,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  DefaultAccessTokenTTL,
			RefreshTokenTTL: DefaultRefreshTokenTTL,
			BcryptCost:      DefaultBcryptCost,
			Issuer:          "driftline",
			Audience:        "driftline-clients",
			PurgeInterval:   DefaultPurgeInterval,
			PurgeRetention:  DefaultPurgeRetention,
		},
		Log: LogConfig{
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// command-line flags, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		// Only explicitly set flags participate, so a flag's zero default
		// never clobbers a file value or a built-in default.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the process assumes.
func (c *Config) Validate() error {
	if len(c.Auth.SigningSecret) < minSigningSecretLen {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.signing_secret must be at least %d bytes", minSigningSecretLen)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.refresh_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.refresh_token_ttl must exceed auth.access_token_ttl")
	}
	if c.Database.Timeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("database.timeout must be positive")
	}
	if c.Auth.PurgeInterval <= 0 || c.Auth.PurgeRetention < 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.purge_interval must be positive and auth.purge_retention non-negative")
	}
	return nil
}
