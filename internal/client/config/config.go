// Package config loads client settings from a YAML file with PIDASH_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes
const (
	ModeCookie  = "cookie"
	ModeDurable = "durable"
)

// Durable storage backends
const (
	StorageBolt    = "bolt"
	StorageKeyring = "keyring"
)

// Environment variables overriding the file
const (
	EnvServer     = "PIDASH_SERVER"
	EnvAuthMode   = "PIDASH_AUTH_MODE"
	EnvStorage    = "PIDASH_STORAGE"
	EnvDBPath     = "PIDASH_DB"
	EnvPassphrase = "PIDASH_PASSPHRASE"
	EnvLogLevel   = "PIDASH_LOG_LEVEL"
)

const (
	DefaultServerURL = "http://localhost:3300"
	DefaultLogLevel  = "warn"
)

// Config represents the client configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig describes the dashboard backend
type ServerConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig selects the credential policy
type AuthConfig struct {
	// cookie или durable
	Mode string `yaml:"mode"`
	// bolt или keyring, только для durable
	Storage string `yaml:"storage,omitempty"`
	// путь к bbolt файлу
	DBPath string `yaml:"db_path,omitempty"`
	// если задан, токены в bbolt шифруются
	Passphrase string `yaml:"passphrase,omitempty"`
	// каталог file backend для keyring
	KeyringDir string `yaml:"keyring_dir,omitempty"`
}

// RealtimeConfig configures the metrics stream
type RealtimeConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty"`
}

// LogConfig configures slog
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// configPathFunc can be overridden for testing
var configPathFunc = defaultConfigPath

// SetConfigPathFunc sets the config path function for testing.
// Returns the original function so it can be restored.
func SetConfigPathFunc(fn func() (string, error)) func() (string, error) {
	orig := configPathFunc
	configPathFunc = fn
	return orig
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pidash", "config.yaml"), nil
}

// DefaultConfigPath returns ~/.config/pidash/config.yaml
func DefaultConfigPath() (string, error) {
	return configPathFunc()
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: DefaultServerURL},
		Auth: AuthConfig{
			Mode:    ModeDurable,
			Storage: StorageBolt,
			DBPath:  defaultDBPath(),
		},
		Realtime: RealtimeConfig{ReconnectDelay: 2 * time.Second},
		Log:      LogConfig{Level: DefaultLogLevel},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "pidash-client.db"
	}
	return filepath.Join(dir, "pidash", "client.db")
}

// Load reads path (or the default path when empty), applies env overrides
// and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err == nil {
			path = p
		}
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(EnvServer, &c.Server.URL)
	set(EnvAuthMode, &c.Auth.Mode)
	set(EnvStorage, &c.Auth.Storage)
	set(EnvDBPath, &c.Auth.DBPath)
	set(EnvPassphrase, &c.Auth.Passphrase)
	set(EnvLogLevel, &c.Log.Level)
}

// Validate checks enumerations and required fields
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return fmt.Errorf("server url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server url must start with http:// or https://: %q", c.Server.URL)
	}

	switch c.Auth.Mode {
	case ModeCookie:
	case ModeDurable:
		switch c.Auth.Storage {
		case StorageBolt:
			if c.Auth.DBPath == "" {
				return fmt.Errorf("auth.db_path is required for bolt storage")
			}
		case StorageKeyring:
		default:
			return fmt.Errorf("unknown auth storage %q (want %s or %s)", c.Auth.Storage, StorageBolt, StorageKeyring)
		}
	default:
		return fmt.Errorf("unknown auth mode %q (want %s or %s)", c.Auth.Mode, ModeCookie, ModeDurable)
	}

	if c.Realtime.ReconnectDelay < 0 {
		return fmt.Errorf("realtime.reconnect_delay must not be negative")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to slog.Level. Empty means warn.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// SaveToPath writes the config as YAML
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
