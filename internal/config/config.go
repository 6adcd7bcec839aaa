// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads qlnb settings from config.yaml in the XDG config dir,
// overridden by QLNB_* environment variables. Only non-secret settings are
// kept here; the database DSN and the remote token go to the OS keychain.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/logging"
	"qlnotebook/cli/internal/xdg"

	"github.com/spf13/viper"
)

// Engine names.
const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
	EngineRemote   = "remote"
)

// EnvPrefix is the prefix of environment overrides, e.g. QLNB_PAGE_SIZE.
const EnvPrefix = "QLNB"

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel   string       `mapstructure:"log_level"`
	Engine     string       `mapstructure:"engine"`
	Cumulative bool         `mapstructure:"cumulative"`
	PageSize   int          `mapstructure:"page_size"`
	ResultsDir string       `mapstructure:"results_dir"`
	SQLite     SQLiteConfig `mapstructure:"sqlite"`
	Remote     RemoteConfig `mapstructure:"remote"`
}

// SQLiteConfig selects the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig points at a qlnb serve instance.
type RemoteConfig struct {
	Addr     string `mapstructure:"addr"`
	Insecure bool   `mapstructure:"insecure"`
}

// Path returns the location of config.yaml.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("engine", EnginePostgres)
	v.SetDefault("cumulative", true)
	v.SetDefault("page_size", 100)
	v.SetDefault("results_dir", "")
	v.SetDefault("sqlite.path", "")
	v.SetDefault("remote.addr", "")
	v.SetDefault("remote.insecure", false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration; a missing file yields the defaults.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile reads configuration from path.
func LoadFile(path string) (Config, error) {
	var c Config
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return c, qlerrors.Wrap(qlerrors.ConfigInvalid, "cannot read "+path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, qlerrors.Wrap(qlerrors.ConfigInvalid, "cannot decode configuration", err)
	}
	if c.ResultsDir == "" {
		dir, err := xdg.ResultsDir()
		if err != nil {
			return c, err
		}
		c.ResultsDir = dir
	}
	return c, c.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Engine {
	case EnginePostgres, EngineSQLite, EngineRemote:
	default:
		return qlerrors.Newf(qlerrors.ConfigInvalid, "unknown engine %q (want %s, %s or %s)", c.Engine, EnginePostgres, EngineSQLite, EngineRemote)
	}
	if c.PageSize <= 0 {
		return qlerrors.Newf(qlerrors.ConfigInvalid, "page_size must be positive, got %d", c.PageSize)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return qlerrors.Wrap(qlerrors.ConfigInvalid, "invalid log_level", err)
	}
	if c.Engine == EngineSQLite && c.SQLite.Path == "" {
		return qlerrors.New(qlerrors.ConfigInvalid, "engine sqlite needs sqlite.path")
	}
	if c.Engine == EngineRemote && c.Remote.Addr == "" {
		return qlerrors.New(qlerrors.ConfigInvalid, "engine remote needs remote.addr")
	}
	return nil
}

// Save writes configuration to config.yaml with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, c)
}

// SaveFile writes configuration to path.
func SaveFile(path string, c Config) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("log_level", c.LogLevel)
	v.Set("engine", c.Engine)
	v.Set("cumulative", c.Cumulative)
	v.Set("page_size", c.PageSize)
	v.Set("results_dir", c.ResultsDir)
	v.Set("sqlite.path", c.SQLite.Path)
	v.Set("remote.addr", c.Remote.Addr)
	v.Set("remote.insecure", c.Remote.Insecure)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
