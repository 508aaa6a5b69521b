// Package config loads lingqdeck settings from defaults, an optional YAML
// file, LINGQDECK_ environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped to
// config keys, so LINGQDECK_DB_PATH sets db_path.
const EnvPrefix = "LINGQDECK_"

// Config is the full runtime configuration.
type Config struct {
	Addr         string        `koanf:"addr" validate:"required"`
	DBPath       string        `koanf:"db_path" validate:"required"`
	ReposDir     string        `koanf:"repos_dir" validate:"required"`
	LingqBaseURL string        `koanf:"lingq_base_url" validate:"required,url"`
	LingqTimeout time.Duration `koanf:"lingq_timeout" validate:"gt=0"`

	SessionSecret string        `koanf:"session_secret" validate:"required,min=16"`
	SessionTTL    time.Duration `koanf:"session_ttl" validate:"gt=0"`
	SecureCookie  bool          `koanf:"secure_cookie"`

	NewCardLimit int    `koanf:"new_card_limit" validate:"gte=0"`
	Timezone     string `koanf:"timezone" validate:"required,timezone"`

	// SyncInterval of zero disables the periodic import.
	SyncInterval time.Duration `koanf:"sync_interval" validate:"gte=0"`
	LogLevel     string        `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// Location resolves Timezone. Validation guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Flags returns a flag set carrying every config key with its default. The
// caller may add its own flags before parsing.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("db-path", "lingqdeck.db", "path to the SQLite database file")
	fs.String("repos-dir", "repos", "directory git sources are cloned into")
	fs.String("lingq-base-url", "https://www.lingq.com/api/v3", "LingQ API base URL")
	fs.Duration("lingq-timeout", 10*time.Second, "timeout for LingQ API calls")
	fs.String("session-secret", "", "HMAC secret for session tokens (at least 16 bytes)")
	fs.Duration("session-ttl", 30*24*time.Hour, "session lifetime")
	fs.Bool("secure-cookie", false, "mark the session cookie Secure")
	fs.Int("new-card-limit", 20, "daily New-card limit for users created at sign-in")
	fs.String("timezone", "UTC", "IANA time zone the study day is computed in")
	fs.Duration("sync-interval", time.Hour, "interval between source imports (0 disables)")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	return fs
}

// Load resolves the configuration from a parsed flag set. A .env file in the
// working directory, if present, is applied to the environment first.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Unchanged flags only contribute their defaults for keys nothing above set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
