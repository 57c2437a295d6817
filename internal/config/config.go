// Package config loads crm settings from an optional YAML file and the
// environment, and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds process settings. Environment variables override the file.
type Config struct {
	// DBPath is the store file. Empty means DefaultDBPath.
	DBPath string `yaml:"db_path" env:"CRM_DB_PATH" env-description:"path of the SQLite store file"`

	// Driver selects the database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver" env:"CRM_DRIVER" env-default:"sqlite3" env-description:"sqlite3 or sqlite"`

	LogLevel string `yaml:"log_level" env:"CRM_LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`

	// NoSeed stops init from adding sample data to an empty store.
	NoSeed bool `yaml:"no_seed" env:"CRM_NO_SEED" env-description:"skip sample data on init"`
}

// Load reads path (if given and present) and then the environment.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		cfg = Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("config: driver %q must be sqlite3 or sqlite", c.Driver)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ResolveDBPath returns DBPath, or DefaultDBPath when unset, creating the
// parent directory.
func (c Config) ResolveDBPath() (string, error) {
	path := c.DBPath
	if path == "" {
		var err error
		if path, err = DefaultDBPath(); err != nil {
			return "", err
		}
	}
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return path, nil
}

// DefaultDBPath is $XDG_DATA_HOME/crm/crm.db, falling back to
// ~/.local/share/crm/crm.db.
func DefaultDBPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "crm", "crm.db"), nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", name)
}

// NewLogger builds a text logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
