// Package config loads application configuration from file, environment, and
// defaults.
//
// Precedence is flags > environment > config file > defaults. Environment
// variables use the STRIDE_ prefix with underscores for nesting, e.g.
// STRIDE_REMOTE_URL overrides remote.url.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration tree.
type Config struct {
	Owner  OwnerConfig  `mapstructure:"owner"`
	Data   DataConfig   `mapstructure:"data"`
	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`

	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// OwnerConfig identifies whose records this device holds.
type OwnerConfig struct {
	ID string `mapstructure:"id"`
}

// DataConfig locates local state.
type DataConfig struct {
	// Path is the SQLite database file. Defaults to ~/.stride/stride.db.
	Path string `mapstructure:"path"`
}

// RemoteConfig describes the backend.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the background daemon.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	// File is the rotated daemon log. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// DashboardConfig controls the WebSocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

const envPrefix = "STRIDE"

// Load reads configuration. cfgFile overrides the default search locations
// (./.stride.yaml, then ~/.stride/config.yaml).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".stride")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".stride"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry it. An
		// explicitly named file must exist.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Data.Path == "" {
		cfg.Data.Path = defaultDBPath()
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("owner.id", "local")
	v.SetDefault("data.path", defaultDBPath())
	// Empty defaults register the keys so env overrides reach Unmarshal.
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("log.file", "")
	v.SetDefault("remote.timeout", 15*time.Second)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("dashboard.port", 8350)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "stride.db"
	}
	return filepath.Join(home, ".stride", "stride.db")
}
