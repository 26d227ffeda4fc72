package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds the connection settings for the back-office API.
type ServerConfig struct {
	// BaseURL is the root URL of the back-office API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// StreamPath is the path of the live notification channel,
	// joined onto BaseURL with the scheme switched to ws/wss.
	StreamPath string `mapstructure:"stream_path" yaml:"stream_path"`
}

// StreamConfig bounds the reconnect backoff of the live channel.
type StreamConfig struct {
	MinBackoffSec int `mapstructure:"min_backoff_sec" yaml:"min_backoff_sec"`
	MaxBackoffSec int `mapstructure:"max_backoff_sec" yaml:"max_backoff_sec"`
}

// PushConfig holds the device identity submitted with a push registration.
type PushConfig struct {
	DeviceName string `mapstructure:"device_name" yaml:"device_name"`
}

// CacheConfig holds per-resource TTLs, in seconds.
type CacheConfig struct {
	PreferencesTTLSec int `mapstructure:"preferences_ttl_sec" yaml:"preferences_ttl_sec"`
	VAPIDKeyTTLSec    int `mapstructure:"vapid_key_ttl_sec" yaml:"vapid_key_ttl_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/backdesk/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "backdesk", "config.yaml")
}

// DefaultDataDir returns the directory holding the local database and
// log file, ~/.local/share/backdesk.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "backdesk")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:    "http://127.0.0.1:8000/api",
			StreamPath: "/notifications/stream/",
		},
		Stream: StreamConfig{
			MinBackoffSec: 1,
			MaxBackoffSec: 30,
		},
		Push: PushConfig{
			DeviceName: defaultDeviceName(),
		},
		Cache: CacheConfig{
			PreferencesTTLSec: 300,
			VAPIDKeyTTLSec:    3600,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// defaultDeviceName labels this device after its hostname.
func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "backdesk terminal"
	}
	return host
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("server.stream_path", "/notifications/stream/")
	v.SetDefault("stream.min_backoff_sec", 1)
	v.SetDefault("stream.max_backoff_sec", 30)
	v.SetDefault("push.device_name", defaultDeviceName())
	v.SetDefault("cache.preferences_ttl_sec", 300)
	v.SetDefault("cache.vapid_key_ttl_sec", 3600)
	v.SetDefault("display.theme", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Stream.MinBackoffSec <= 0 {
		cfg.Stream.MinBackoffSec = 1
	}
	if cfg.Stream.MaxBackoffSec < cfg.Stream.MinBackoffSec {
		cfg.Stream.MaxBackoffSec = cfg.Stream.MinBackoffSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("stream", cfg.Stream)
	v.Set("push", cfg.Push)
	v.Set("cache", cfg.Cache)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
