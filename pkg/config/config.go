// Package config provides YAML-based configuration loading for wirecast.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the relay process
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Listeners configures the inbound endpoints, one entry per transport
	Listeners []ListenerConfig `mapstructure:"listeners"`

	// Relay holds per-connection relay options
	Relay RelayConfig `mapstructure:"relay"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ListenerConfig describes one transport kind and its listen endpoints.
// Example YAML:
//
//	listeners:
//	  - kind: tcp
//	    listen: [":9300"]
//	  - kind: ws
//	    listen: [":9301"]
//	    extra:
//	      path: /ws
//	  - kind: quic
//	    listen: [":9302"]
type ListenerConfig struct {
	Kind   string   `mapstructure:"kind"`
	Listen []string `mapstructure:"listen"`
	// Extra holds transport-specific options (e.g. the ws upgrade path)
	Extra map[string]any `mapstructure:"extra"`
}

// RelayConfig holds per-connection relay options.
type RelayConfig struct {
	// HandshakeTimeoutMS bounds how long a fresh connection may take to send
	// its hello; 0 waits indefinitely.
	HandshakeTimeoutMS int `mapstructure:"handshake_timeout_ms"`
	// ReadBufferBytes sizes stream-transport reads (one read = one forwarded chunk)
	ReadBufferBytes int `mapstructure:"read_buffer_bytes"`
	// MaxFrameBytes bounds one inbound message-transport frame
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "wirecast-relay",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/wirecast.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Listeners: []ListenerConfig{
			{Kind: "tcp", Listen: []string{":9300"}},
			{Kind: "ws", Listen: []string{":9301"}},
		},
		Relay: RelayConfig{
			HandshakeTimeoutMS: 0,
			ReadBufferBytes:    32 * 1024,
			MaxFrameBytes:      1 << 20,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix WIRECAST and `.`/`-` are replaced
// with `_`. Example: WIRECAST_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WIRECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("listeners", cfg.Listeners)
	v.SetDefault("relay.handshake_timeout_ms", cfg.Relay.HandshakeTimeoutMS)
	v.SetDefault("relay.read_buffer_bytes", cfg.Relay.ReadBufferBytes)
	v.SetDefault("relay.max_frame_bytes", cfg.Relay.MaxFrameBytes)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("WIRECAST_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `wirecast`
		v.SetConfigName("wirecast")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wirecast"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Relay.HandshakeTimeoutMS < 0 {
		return fmt.Errorf("invalid relay.handshake_timeout_ms: %d", c.Relay.HandshakeTimeoutMS)
	}
	if c.Relay.ReadBufferBytes <= 0 {
		c.Relay.ReadBufferBytes = 32 * 1024
	}
	if c.Relay.MaxFrameBytes <= 0 {
		c.Relay.MaxFrameBytes = 1 << 20
	}
	for i := range c.Listeners {
		c.Listeners[i].Kind = strings.ToLower(strings.TrimSpace(c.Listeners[i].Kind))
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
