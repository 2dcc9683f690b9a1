// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration for the service. Sections are populated
// from (in ascending precedence) built-in defaults, an optional config file,
// and SCRAPE_* environment variables.
type Config struct {
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	LimitsCfg  LimitsConfig  `mapstructure:"limits" yaml:"limits"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	EventsCfg  EventsConfig  `mapstructure:"events" yaml:"events"`
	FramesCfg  FramesConfig  `mapstructure:"frames" yaml:"frames"`
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
}

func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Limits() LimitsConfig   { return c.LimitsCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Events() EventsConfig   { return c.EventsCfg }
func (c *Config) Frames() FramesConfig   { return c.FramesCfg }
func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }

// ServerConfig controls the HTTP listener and request authentication.
type ServerConfig struct {
	Bind              string        `mapstructure:"bind" yaml:"bind"`
	Port              int           `mapstructure:"port" yaml:"port"`
	RequireAuth       bool          `mapstructure:"require_auth" yaml:"require_auth"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// LimitsConfig controls the admission pipeline: the per-client token buckets
// and the global browser-operation semaphore.
type LimitsConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	QueueTimeout   time.Duration `mapstructure:"queue_timeout" yaml:"queue_timeout"`
	RateLimitRate  float64       `mapstructure:"rate_limit_rate" yaml:"rate_limit_rate"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	// BucketIdleTTL bounds the rate-limiter map: buckets idle longer than
	// this are evicted. Zero disables eviction.
	BucketIdleTTL time.Duration `mapstructure:"bucket_idle_ttl" yaml:"bucket_idle_ttl"`
}

// BrowserConfig controls the Chrome process and per-operation deadlines.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath    string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth   int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight  int           `mapstructure:"window_height" yaml:"window_height"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	DOMMaxChars   int           `mapstructure:"dom_max_chars" yaml:"dom_max_chars"`
}

// EventsConfig controls the per-session telemetry buffers and the SSE stream.
type EventsConfig struct {
	BufferDepth       int           `mapstructure:"buffer_depth" yaml:"buffer_depth"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// FramesConfig controls screenshot storage and retention.
type FramesConfig struct {
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// LoggerConfig controls the zap logger and file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
}

// SetDefaults seeds v with the default value of every key. Defaults mirror
// the service's documented environment contract.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.bind", "0.0.0.0")
	v.SetDefault("server.port", 8130)
	v.SetDefault("server.require_auth", false)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Limits --
	v.SetDefault("limits.max_concurrency", 2)
	v.SetDefault("limits.queue_timeout", "2s")
	v.SetDefault("limits.rate_limit_rate", 10.0)
	v.SetDefault("limits.rate_limit_burst", 20)
	v.SetDefault("limits.bucket_idle_ttl", "15m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.action_timeout", "8s")
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.dom_max_chars", 200000)

	// -- Events --
	v.SetDefault("events.buffer_depth", 256)
	v.SetDefault("events.heartbeat_interval", "45s")

	// -- Frames --
	v.SetDefault("frames.dir", "frames")
	v.SetDefault("frames.ttl", "15m")
	v.SetDefault("frames.sweep_interval", "30s")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "web-scrape-service")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.add_source", false)
}

// NewDefaultConfig returns a Config holding only the defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults are defined in this package; they cannot fail validation.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// NewConfigFromViper unmarshals, expands and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Short env alias for the secret, in addition to SCRAPE_SERVER_API_KEY.
	_ = v.BindEnv("server.api_key", "SCRAPE_API_KEY", "SCRAPE_SERVER_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves ~ in user-supplied paths.
func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.FramesCfg.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve frames dir %q: %w", c.FramesCfg.Dir, err)
	}
	c.FramesCfg.Dir = dir

	if c.LoggerCfg.LogFile != "" {
		file, err := homedir.Expand(c.LoggerCfg.LogFile)
		if err != nil {
			return fmt.Errorf("could not resolve log file %q: %w", c.LoggerCfg.LogFile, err)
		}
		c.LoggerCfg.LogFile = file
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.Port <= 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.ServerCfg.RequireAuth && c.ServerCfg.APIKey == "" {
		return fmt.Errorf("server.api_key is required when server.require_auth is set")
	}
	if c.LimitsCfg.MaxConcurrency <= 0 {
		return fmt.Errorf("limits.max_concurrency must be a positive integer")
	}
	if c.LimitsCfg.QueueTimeout < 0 {
		return fmt.Errorf("limits.queue_timeout must not be negative")
	}
	if c.LimitsCfg.RateLimitRate <= 0 {
		return fmt.Errorf("limits.rate_limit_rate must be positive")
	}
	if c.LimitsCfg.RateLimitBurst < 1 {
		return fmt.Errorf("limits.rate_limit_burst must be at least 1")
	}
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	if c.BrowserCfg.DOMMaxChars <= 0 {
		return fmt.Errorf("browser.dom_max_chars must be positive")
	}
	if c.EventsCfg.BufferDepth <= 0 {
		return fmt.Errorf("events.buffer_depth must be a positive integer")
	}
	if c.EventsCfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("events.heartbeat_interval must be positive")
	}
	if c.FramesCfg.Dir == "" {
		return fmt.Errorf("frames.dir must not be empty")
	}
	if c.FramesCfg.SweepInterval <= 0 {
		return fmt.Errorf("frames.sweep_interval must be positive")
	}
	return nil
}
