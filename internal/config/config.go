// Package config loads vq settings from a config file, environment
// variables and defaults, in that order of increasing precedence for the
// environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the resolved vq configuration.
type Config struct {
	// VaultRoot is the directory of Markdown documents to index and edit.
	VaultRoot string `mapstructure:"vault_root"`
	// DBPath is the SQLite database file; empty derives <vault>/.vq/index.db.
	DBPath string `mapstructure:"db_path"`
	// FuzzyThreshold is the minimum token-set similarity for fuzzy task
	// location.
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	// SlowFileMillis logs a warning when indexing one file exceeds this
	// duration. Zero disables the check.
	SlowFileMillis int `mapstructure:"slow_file_millis"`
	// NoColor disables styled terminal output.
	NoColor bool `mapstructure:"no_color"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls the rotating log file. With an empty File, logs go to
// stderr only.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads vaultquery.yaml from the working directory or
// ~/.config/vaultquery, applies VQ_* environment overrides, and fills in
// defaults. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("vaultquery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/vaultquery")

	v.SetDefault("vault_root", ".")
	v.SetDefault("db_path", "")
	v.SetDefault("fuzzy_threshold", 0.6)
	v.SetDefault("slow_file_millis", 500)
	v.SetDefault("no_color", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetEnvPrefix("VQ")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.VaultRoot, ".vq", "index.db")
	}
	return &cfg, nil
}
