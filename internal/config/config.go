// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Automation() AutomationConfig
	Inventory() InventoryConfig
	Runner() RunnerConfig
	Database() DatabaseConfig
	Report() ReportConfig
}

// Config holds the entire application configuration. The router model document
// lives in the same file but is decoded separately by the routerconfig package.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AutomationCfg AutomationConfig `mapstructure:"automation" yaml:"automation"`
	InventoryCfg  InventoryConfig  `mapstructure:"inventory" yaml:"inventory"`
	RunnerCfg     RunnerConfig     `mapstructure:"runner" yaml:"runner"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	ReportCfg     ReportConfig     `mapstructure:"report" yaml:"report"`
}

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Automation() AutomationConfig { return c.AutomationCfg }
func (c *Config) Inventory() InventoryConfig   { return c.InventoryCfg }
func (c *Config) Runner() RunnerConfig         { return c.RunnerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Report() ReportConfig         { return c.ReportCfg }

// LoggerConfig holds all the configuration for the logger.
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
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the per-device browser instances.
type BrowserConfig struct {
	// ExecPath points at the chromium binary. Empty lets chromedp search the PATH.
	ExecPath         string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless         bool     `mapstructure:"headless" yaml:"headless"`
	ContainerRuntime bool     `mapstructure:"container_runtime" yaml:"container_runtime"`
	IgnoreTLSErrors  bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args             []string `mapstructure:"args" yaml:"args"`
}

// AutomationConfig holds the bounded waits and settle delays used by the interpreter.
type AutomationConfig struct {
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	DialogTimeout     time.Duration `mapstructure:"dialog_timeout" yaml:"dialog_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LoginSettle       time.Duration `mapstructure:"login_settle" yaml:"login_settle"`
	// SubmitWait applies to submits that do not declare their own wait.
	SubmitWait time.Duration `mapstructure:"submit_wait" yaml:"submit_wait"`
	RebootWait time.Duration `mapstructure:"reboot_wait" yaml:"reboot_wait"`
}

// InventoryConfig describes the layout of the device inventory file.
type InventoryConfig struct {
	Delimiter  string           `mapstructure:"delimiter" yaml:"delimiter"`
	SkipHeader bool             `mapstructure:"skip_header" yaml:"skip_header"`
	Columns    InventoryColumns `mapstructure:"columns" yaml:"columns"`
}

// InventoryColumns holds zero-based column indices.
type InventoryColumns struct {
	Address     int `mapstructure:"address" yaml:"address"`
	Port        int `mapstructure:"port" yaml:"port"`
	Credentials int `mapstructure:"credentials" yaml:"credentials"`
	Model       int `mapstructure:"model" yaml:"model"`
}

// RunnerConfig tunes the batch runner.
type RunnerConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	// LaunchInterval spaces browser launches. Zero disables pacing.
	LaunchInterval time.Duration `mapstructure:"launch_interval" yaml:"launch_interval"`
}

// DatabaseConfig holds the database connection details. An empty URL disables the outcome store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ReportConfig controls the run summary written at the end of a batch.
type ReportConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
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
	v.SetDefault("logger.service_name", "router-reset")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.container_runtime", false)
	v.SetDefault("browser.ignore_tls_errors", true)

	// -- Automation --
	v.SetDefault("automation.element_timeout", "60s")
	v.SetDefault("automation.dialog_timeout", "10s")
	v.SetDefault("automation.navigation_timeout", "60s")
	v.SetDefault("automation.login_settle", "2s")
	v.SetDefault("automation.submit_wait", "5s")
	v.SetDefault("automation.reboot_wait", "5s")

	// -- Inventory --
	v.SetDefault("inventory.delimiter", ";")
	v.SetDefault("inventory.skip_header", true)
	v.SetDefault("inventory.columns.address", 0)
	v.SetDefault("inventory.columns.port", 1)
	v.SetDefault("inventory.columns.credentials", 4)
	v.SetDefault("inventory.columns.model", 5)

	// -- Runner --
	v.SetDefault("runner.workers", 1)
	v.SetDefault("runner.launch_interval", "0s")

	// -- Report --
	v.SetDefault("report.path", "")
	v.SetDefault("report.format", "json")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries a password, keep it out of the file.
	_ = v.BindEnv("database.url", "ROUTER_RESET_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AutomationCfg.Validate(); err != nil {
		return fmt.Errorf("automation configuration invalid: %w", err)
	}
	if err := c.InventoryCfg.Validate(); err != nil {
		return fmt.Errorf("inventory configuration invalid: %w", err)
	}
	if c.RunnerCfg.Workers <= 0 {
		return fmt.Errorf("runner.workers must be a positive integer")
	}
	if c.RunnerCfg.LaunchInterval < 0 {
		return fmt.Errorf("runner.launch_interval must not be negative")
	}
	switch c.ReportCfg.Format {
	case "json", "junit", "text":
	default:
		return fmt.Errorf("report.format %q is not supported (json, junit, text)", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks the automation timings.
func (a *AutomationConfig) Validate() error {
	if a.ElementTimeout <= 0 {
		return errors.New("element_timeout must be a positive duration")
	}
	if a.DialogTimeout <= 0 {
		return errors.New("dialog_timeout must be a positive duration")
	}
	if a.NavigationTimeout <= 0 {
		return errors.New("navigation_timeout must be a positive duration")
	}
	if a.LoginSettle < 0 || a.SubmitWait < 0 || a.RebootWait < 0 {
		return errors.New("settle delays must not be negative")
	}
	return nil
}

// Validate checks the delimiter and that the column indices are usable.
func (i *InventoryConfig) Validate() error {
	if utf8.RuneCountInString(i.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", i.Delimiter)
	}
	cols := map[string]int{
		"address":     i.Columns.Address,
		"port":        i.Columns.Port,
		"credentials": i.Columns.Credentials,
		"model":       i.Columns.Model,
	}
	seen := make(map[int]string, len(cols))
	for _, name := range []string{"address", "port", "credentials", "model"} {
		idx := cols[name]
		if idx < 0 {
			return fmt.Errorf("columns.%s must not be negative", name)
		}
		if other, dup := seen[idx]; dup {
			return fmt.Errorf("columns.%s and columns.%s both use index %d", other, name, idx)
		}
		seen[idx] = name
	}
	return nil
}

// Comma returns the delimiter as a rune for encoding/csv.
func (i InventoryConfig) Comma() rune {
	r, _ := utf8.DecodeRuneInString(i.Delimiter)
	return r
}
