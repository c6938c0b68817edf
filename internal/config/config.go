// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	UI         UIConfig         `mapstructure:"ui" yaml:"ui"`
}

// LoggerConfig holds all the configuration for the logger.
//
// The TUI owns stdout while it runs, so unlike a typical CLI the default
// sink is the rotating log file; console output is enabled explicitly by
// headless mode and tests.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// GatewayConfig configures the dashboard socket connection.
type GatewayConfig struct {
	// URL is the websocket endpoint of the run bridge, e.g.
	// ws://127.0.0.1:7860/ws.
	URL string `mapstructure:"url" yaml:"url"`
	// ReconnectDelay is the fixed wait between a close and the next dial.
	// There is no backoff and no retry cap; the client retries forever.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// IdleTimeout is the longest silence tolerated before the connection is
	// treated as dead. The bridge heartbeats every 30s, so anything well
	// above that works.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// MaxMessageSize caps a single inbound frame.
	MaxMessageSize int64 `mapstructure:"max_message_size" yaml:"max_message_size"`
}

// ScreenshotConfig configures the auxiliary screenshot fetcher.
type ScreenshotConfig struct {
	// BaseURL is the HTTP origin of the bridge, e.g. http://127.0.0.1:7860.
	// Empty means "derive from the gateway URL".
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerSecond / Burst throttle rapid reselection so the bridge is
	// not hammered; excess requests are dropped, not queued.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// UIConfig holds presentation knobs.
type UIConfig struct {
	// StreamTailLimit is how many trailing characters of an in-progress
	// agent response are rendered.
	StreamTailLimit int `mapstructure:"stream_tail_limit" yaml:"stream_tail_limit"`
	// BottomThresholdLines is how close to the bottom the feed must be for
	// auto-scroll to re-stick after a redraw.
	BottomThresholdLines int `mapstructure:"bottom_threshold_lines" yaml:"bottom_threshold_lines"`
	// TaskTruncate caps the agent task text shown in the tree pane.
	TaskTruncate int `mapstructure:"task_truncate" yaml:"task_truncate"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lancet")
	v.SetDefault("logger.log_file", "lancet.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Gateway --
	v.SetDefault("gateway.url", "ws://127.0.0.1:7860/ws")
	v.SetDefault("gateway.reconnect_delay", "3s")
	v.SetDefault("gateway.handshake_timeout", "10s")
	v.SetDefault("gateway.idle_timeout", "90s")
	v.SetDefault("gateway.max_message_size", 16*1024*1024)

	// -- Screenshot --
	v.SetDefault("screenshot.base_url", "")
	v.SetDefault("screenshot.timeout", "15s")
	v.SetDefault("screenshot.requests_per_second", 2.0)
	v.SetDefault("screenshot.burst", 3)

	// -- UI --
	v.SetDefault("ui.stream_tail_limit", 500)
	v.SetDefault("ui.bottom_threshold_lines", 3)
	v.SetDefault("ui.task_truncate", 120)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; this only fires on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from the given file (or ./lancet.yaml when path
// is empty), layered over defaults and LANCET_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("lancet")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LANCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url must not be empty")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}
	if c.Gateway.ReconnectDelay <= 0 {
		return fmt.Errorf("gateway.reconnect_delay must be positive")
	}
	if c.UI.StreamTailLimit <= 0 {
		return fmt.Errorf("ui.stream_tail_limit must be positive")
	}
	return nil
}

// ScreenshotBase resolves the HTTP origin for the screenshot endpoint,
// deriving it from the websocket URL when not set explicitly:
// ws://host/ws -> http://host, wss://host/ws -> https://host.
func (c *Config) ScreenshotBase() string {
	if c.Screenshot.BaseURL != "" {
		return strings.TrimRight(c.Screenshot.BaseURL, "/")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}
