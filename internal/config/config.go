// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Autofill() AutofillConfig
	Messaging() MessagingConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)
	SetBrowserAllowClosedShadowRoots(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	AutofillCfg  AutofillConfig  `mapstructure:"autofill" yaml:"autofill"`
	MessagingCfg MessagingConfig `mapstructure:"messaging" yaml:"messaging"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Autofill() AutofillConfig   { return c.AutofillCfg }
func (c *Config) Messaging() MessagingConfig { return c.MessagingCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string) { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetBrowserAllowClosedShadowRoots(b bool) {
	c.BrowserCfg.AllowClosedShadowRoots = b
}

// LoggerConfig configures the zap logger and its rotating file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig points at the PostgreSQL fill journal. An empty URL disables
// the journal.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig controls how the Chromium instance is launched or attached.
type BrowserConfig struct {
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	Args      []string `mapstructure:"args" yaml:"args"`
	ExecPath  string   `mapstructure:"exec_path" yaml:"exec_path"`
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	// Viewport is keyed by "width" and "height".
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// AllowClosedShadowRoots lets discovery descend into closed shadow roots.
	AllowClosedShadowRoots bool `mapstructure:"allow_closed_shadow_roots" yaml:"allow_closed_shadow_roots"`
}

// AutofillConfig tunes request handling.
type AutofillConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// MessagingConfig tunes the native-messaging transport.
type MessagingConfig struct {
	MaxMessageBytes   int     `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// MaxNativeMessageBytes is the largest frame the browser accepts from a
// native host.
const MaxNativeMessageBytes = 1 << 20

// NewDefaultConfig builds a configuration from defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "loginfill")
	v.SetDefault("logger.log_file", "~/.loginfill/loginfill.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.allow_closed_shadow_roots", false)

	// -- Autofill --
	v.SetDefault("autofill.operation_timeout", "0s")

	// -- Messaging --
	v.SetDefault("messaging.max_message_bytes", MaxNativeMessageBytes)
	v.SetDefault("messaging.requests_per_second", 0)
	v.SetDefault("messaging.burst", 1)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The journal DSN carries a password, so it is usually supplied by env.
	if err := v.BindEnv("database.url", "LOGINFILL_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database env: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	logFile, err := homedir.Expand(cfg.LoggerCfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	cfg.LoggerCfg.LogFile = logFile

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.AutofillCfg.OperationTimeout < 0 {
		return fmt.Errorf("autofill.operation_timeout must not be negative")
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.MessagingCfg.Validate(); err != nil {
		return fmt.Errorf("messaging configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser configuration.
func (b *BrowserConfig) Validate() error {
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	for _, key := range []string{"width", "height"} {
		if n, ok := b.Viewport[key]; ok && n <= 0 {
			return fmt.Errorf("viewport.%s must be a positive integer", key)
		}
	}
	return nil
}

// Validate checks the messaging configuration.
func (m *MessagingConfig) Validate() error {
	if m.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be a positive integer")
	}
	if m.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if m.RequestsPerSecond > 0 && m.Burst <= 0 {
		return fmt.Errorf("burst must be positive when requests_per_second is set")
	}
	return nil
}
