// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

// Package config loads lawdesk settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/lawdesk/lawdesk/internal/auth"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: LAWDESK_AUTH__ACCESS_TTL sets auth.access_ttl.
const EnvPrefix = "LAWDESK_"

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	HTTP     HTTPConfig     `koanf:"http"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatabaseConfig locates the account store.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig locates the session registry.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// AuthConfig holds secrets and lifetimes for the credential service.
type AuthConfig struct {
	Salt         string `koanf:"salt"`
	AccessSecret string `koanf:"access_secret"`
	// RefreshSecret is accepted for compatibility with existing deployments.
	// Refresh handles are opaque and never signed.
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	Argon2        Argon2Config  `koanf:"argon2"`
	RegistryRetry RetryConfig   `koanf:"registry_retry"`
}

// Argon2Config mirrors auth.Argon2Params.
type Argon2Config struct {
	Memory  uint32 `koanf:"memory"`
	Time    uint32 `koanf:"time"`
	Threads uint8  `koanf:"threads"`
	KeyLen  uint32 `koanf:"key_len"`
}

// RetryConfig bounds best-effort registry writes.
type RetryConfig struct {
	Attempts uint64        `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`
}

// HTTPConfig configures the credential API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	SecureCookies   bool          `koanf:"secure_cookies"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

var defaults = map[string]any{
	"database.max_conns":           int32(10),
	"redis.db":                     0,
	"redis.key_prefix":             "lawdesk:refresh:",
	"auth.access_ttl":              auth.DefaultAccessTTL,
	"auth.refresh_ttl":             auth.DefaultRefreshTTL,
	"auth.argon2.memory":           auth.DefaultArgon2Params().Memory,
	"auth.argon2.time":             auth.DefaultArgon2Params().Time,
	"auth.argon2.threads":          auth.DefaultArgon2Params().Threads,
	"auth.argon2.key_len":          auth.DefaultArgon2Params().KeyLen,
	"auth.registry_retry.attempts": uint64(auth.DefaultRegistryAttempts),
	"auth.registry_retry.backoff":  auth.DefaultRegistryBackoff,
	"http.addr":                    "127.0.0.1:8080",
	"http.read_timeout":            10 * time.Second,
	"http.write_timeout":           10 * time.Second,
	"http.shutdown_timeout":        15 * time.Second,
	"http.secure_cookies":          true,
	"log.format":                   "json",
	"log.level":                    "info",
	"metrics.addr":                 "127.0.0.1:9100",
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"redis-addr":   "redis.addr",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// BindFlags registers the overridable settings on fs. Flag defaults are
// empty so an unset flag never masks the file or environment.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("redis-addr", "", "Redis address (host:port)")
	fs.String("http-addr", "", "credential API listen address")
	fs.String("metrics-addr", "", "metrics/health HTTP address")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// LoadOptions selects the optional sources.
type LoadOptions struct {
	// File is a YAML config file. Empty skips it.
	File string
	// EnvFile is a dotenv file merged into the process environment before
	// it is read. Existing variables win. A missing file is ignored.
	EnvFile string
	// Flags are applied last. Only flags the user changed take effect.
	Flags *pflag.FlagSet
}

// Load builds a Config. It does not validate; call Validate before use.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", opts.File).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "dotenv").With("path", opts.EnvFile).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps LAWDESK_AUTH__ACCESS_TTL to auth.access_ttl.
func envKey(k, v string) (string, any) {
	name := strings.TrimPrefix(k, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", "."), v
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	require(c.Database.URL != "", "database.url is required")
	require(c.Redis.Addr != "", "redis.addr is required")
	require(c.Auth.AccessSecret != "", "auth.access_secret is required")
	require(c.Auth.Salt != "", "auth.salt is required")
	if c.Auth.Salt != "" {
		require(len(c.Auth.Salt) >= auth.MinSaltLength, "auth.salt must be at least 8 bytes")
	}
	require(c.Auth.AccessTTL > 0, "auth.access_ttl must be positive")
	require(c.Auth.RefreshTTL > 0, "auth.refresh_ttl must be positive")
	a := c.Auth.Argon2
	require(a.Memory > 0 && a.Time > 0 && a.Threads > 0 && a.KeyLen > 0, "auth.argon2 parameters must be positive")
	require(c.Auth.RegistryRetry.Attempts > 0, "auth.registry_retry.attempts must be positive")
	require(c.Log.Format == "json" || c.Log.Format == "text", "log.format must be 'json' or 'text'")

	if len(problems) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// Argon2Params converts the hashing settings.
func (a AuthConfig) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Memory:  a.Argon2.Memory,
		Time:    a.Argon2.Time,
		Threads: a.Argon2.Threads,
		KeyLen:  a.Argon2.KeyLen,
	}
}

// TokenConfig converts the token settings.
func (a AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret: []byte(a.AccessSecret),
		AccessTTL:    a.AccessTTL,
		RefreshTTL:   a.RefreshTTL,
	}
}

// RetryPolicy converts the registry retry settings.
func (a AuthConfig) RetryPolicy() auth.RetryPolicy {
	return auth.RetryPolicy{
		Attempts: a.RegistryRetry.Attempts,
		Backoff:  a.RegistryRetry.Backoff,
	}
}
