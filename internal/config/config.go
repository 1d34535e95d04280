// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package config loads the lifecycle command configuration. Values come from
// an optional YAML file, then the environment, then command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/networkeyes/lifecycle/internal/logging"
	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NETWORKEYES_"

// Config is the resolved command configuration.
type Config struct {
	Database    DatabaseConfig `koanf:"database"`
	Plugins     PluginsConfig  `koanf:"plugins"`
	Log         LogConfig      `koanf:"log"`
	MetricsFile string         `koanf:"metrics_file"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	URL    string `koanf:"url"`
}

// PluginsConfig locates plugin files.
type PluginsConfig struct {
	// Dir is the root of the per-user plugin directories.
	Dir string `koanf:"dir"`
	// Source holds the built plugin files copied on install.
	Source string `koanf:"source"`
	// Descriptor optionally replaces the built-in descriptor set.
	Descriptor string   `koanf:"descriptor"`
	Exclude    []string `koanf:"exclude"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"database-driver":    "database.driver",
	"database-url":       "database.url",
	"plugins-dir":        "plugins.dir",
	"plugins-source":     "plugins.source",
	"plugins-descriptor": "plugins.descriptor",
	"plugins-exclude":    "plugins.exclude",
	"log-format":         "log.format",
	"log-level":          "log.level",
	"metrics-file":       "metrics_file",
}

// envKeys maps environment variables, without EnvPrefix, to config keys.
var envKeys = map[string]string{
	"DATABASE_DRIVER":    "database.driver",
	"DATABASE_URL":       "database.url",
	"PLUGINS_DIR":        "plugins.dir",
	"PLUGINS_SOURCE":     "plugins.source",
	"PLUGINS_DESCRIPTOR": "plugins.descriptor",
	"PLUGINS_EXCLUDE":    "plugins.exclude",
	"LOG_FORMAT":         "log.format",
	"LOG_LEVEL":          "log.level",
	"METRICS_FILE":       "metrics_file",
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/networkeyes/config.yaml)")
	flags.String("database-driver", string(store.DialectPostgres), "record store driver (postgres or sqlite)")
	flags.String("database-url", "", "database URL or SQLite path (falls back to DATABASE_URL)")
	flags.String("plugins-dir", "", "root of the per-user plugin directories")
	flags.String("plugins-source", "", "directory holding the built plugin files")
	flags.String("plugins-descriptor", "", "YAML descriptor set replacing the built-in one")
	flags.StringSlice("plugins-exclude", nil, "glob patterns excluded from the copy")
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
}

// Load resolves and validates the configuration. Flags left at their
// defaults do not override the file or the environment. An explicit --config
// must exist; the default config file is optional.
func Load(flags *pflag.FlagSet) (*Config, error) {
	cfg, err := load(flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for commands that only touch the database. Plugin
// settings are not validated.
func LoadDatabase(flags *pflag.FlagSet) (*Config, error) {
	cfg, err := load(flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateBase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit, err := configPath(flags)
	if err != nil {
		return nil, err
	}
	if ok, err := shouldLoad(path, explicit); err != nil {
		return nil, err
	} else if ok {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrapf(err, "load config file")
		}
	}

	// DATABASE_URL is read before the prefixed variables so they win.
	if err := k.Load(env.ProviderWithValue("DATABASE_URL", ".", func(key, value string) (string, any) {
		if key != "DATABASE_URL" {
			return "", nil
		}
		return "database.url", value
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load DATABASE_URL")
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load environment")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode config")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// shouldLoad reports whether the config file at path should be read. A
// missing default file is skipped.
func shouldLoad(path string, explicit bool) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return false, nil
	default:
		return false, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrapf(err, "stat config file")
	}
}

func configPath(flags *pflag.FlagSet) (path string, explicit bool, err error) {
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			return f.Value.String(), true, nil
		}
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, true, nil
	}
	p, err := xdg.ConfigFile()
	if err != nil {
		return "", false, err
	}
	return p, false, nil
}

func envValue(key, value string) (string, any) {
	name, ok := envKeys[strings.TrimPrefix(key, EnvPrefix)]
	if !ok {
		return "", nil
	}
	if name == "plugins.exclude" {
		return name, strings.Split(value, ",")
	}
	return name, value
}

func (c *Config) applyDefaults() error {
	if c.Database.Driver == "" {
		c.Database.Driver = string(store.DialectPostgres)
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Plugins.Dir == "" {
		dir, err := xdg.PluginsDir()
		if err != nil {
			return err
		}
		c.Plugins.Dir = dir
	}
	if c.Database.URL == "" && c.Database.Driver == string(store.DialectSQLite) {
		path, err := xdg.DatabaseFile()
		if err != nil {
			return err
		}
		c.Database.URL = path
	}
	return nil
}

// Dialect returns the parsed database driver.
func (c *Config) Dialect() store.Dialect {
	d, _ := store.ParseDialect(c.Database.Driver)
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.validateBase(); err != nil {
		return err
	}
	if c.Plugins.Dir == "" {
		return oops.Code("CONFIG_INVALID").Errorf("plugins dir is required")
	}
	if c.Plugins.Source == "" {
		return oops.Code("CONFIG_INVALID").Errorf("plugins source is required (--plugins-source)")
	}
	return nil
}

func (c *Config) validateBase() error {
	if _, err := store.ParseDialect(c.Database.Driver); err != nil {
		return oops.Code("CONFIG_INVALID").With("driver", c.Database.Driver).
			Errorf("database driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return oops.Code("CONFIG_INVALID").With("format", c.Log.Format).
			Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("level", c.Log.Level).
			Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
