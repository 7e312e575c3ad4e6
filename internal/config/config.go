// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Commands depend on this rather than the concrete struct so tests can
// hand in a prepared value.
type Interface interface {
	Logger() LoggerConfig
	Bridge() BridgeConfig
	Controller() ControllerConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BridgeCfg     BridgeConfig     `mapstructure:"bridge" yaml:"bridge"`
	ControllerCfg ControllerConfig `mapstructure:"controller" yaml:"controller"`
}

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Bridge() BridgeConfig         { return c.BridgeCfg }
func (c *Config) Controller() ControllerConfig { return c.ControllerCfg }

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

// ColorConfig names the terminal color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BridgeConfig tunes the renderer side of the bridge.
type BridgeConfig struct {
	// ControllerURL is the websocket endpoint of the controller process.
	ControllerURL string `mapstructure:"controller_url" yaml:"controller_url"`
	// RoundTripTimeout bounds every blocking request. Zero waits forever.
	RoundTripTimeout time.Duration `mapstructure:"round_trip_timeout" yaml:"round_trip_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// Linger keeps the page loop alive after the script returns so pushes
	// and timers still run.
	Linger time.Duration `mapstructure:"linger" yaml:"linger"`
}

// ControllerConfig configures the reference controller process.
type ControllerConfig struct {
	Address        string        `mapstructure:"address" yaml:"address"`
	Path           string        `mapstructure:"path" yaml:"path"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	OneWayRate     float64       `mapstructure:"one_way_rate" yaml:"one_way_rate"`
	OneWayBurst    int           `mapstructure:"one_way_burst" yaml:"one_way_burst"`
	InitialHistory []string      `mapstructure:"initial_history" yaml:"initial_history"`
	Dialog         DialogConfig  `mapstructure:"dialog" yaml:"dialog"`
	// StatusInterval logs a summary of connected windows periodically.
	// Zero disables it.
	StatusInterval time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
}

// DialogConfig holds the scripted answers of the reference controller.
type DialogConfig struct {
	// ConfirmResponse is the button index reported for every confirm dialog.
	ConfirmResponse int `mapstructure:"confirm_response" yaml:"confirm_response"`
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

// NewConfigFromViper unmarshals, normalizes and validates the configuration
// held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvPrefix is prepended to every environment override, e.g.
// PAGEBRIDGE_BRIDGE_ROUND_TRIP_TIMEOUT.
const EnvPrefix = "PAGEBRIDGE"

// BindEnv makes v honour PAGEBRIDGE_* environment overrides.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(newEnvReplacer())
	v.AutomaticEnv()
}

func newEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagebridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Bridge --
	v.SetDefault("bridge.controller_url", "ws://127.0.0.1:7400/bridge")
	v.SetDefault("bridge.round_trip_timeout", "30s")
	v.SetDefault("bridge.dial_timeout", "10s")
	v.SetDefault("bridge.write_timeout", "5s")
	v.SetDefault("bridge.linger", "0s")

	// -- Controller --
	v.SetDefault("controller.address", "127.0.0.1:7400")
	v.SetDefault("controller.path", "/bridge")
	v.SetDefault("controller.write_timeout", "5s")
	v.SetDefault("controller.one_way_rate", 200.0)
	v.SetDefault("controller.one_way_burst", 50)
	v.SetDefault("controller.initial_history", []string{"about:blank"})
	v.SetDefault("controller.dialog.confirm_response", 0)
	v.SetDefault("controller.status_interval", "0s")
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var errs []string

	if c.BridgeCfg.RoundTripTimeout < 0 {
		errs = append(errs, "bridge.round_trip_timeout must not be negative")
	}
	if c.BridgeCfg.DialTimeout < 0 {
		errs = append(errs, "bridge.dial_timeout must not be negative")
	}
	if c.BridgeCfg.Linger < 0 {
		errs = append(errs, "bridge.linger must not be negative")
	}
	if c.ControllerCfg.OneWayRate <= 0 {
		errs = append(errs, "controller.one_way_rate must be positive")
	}
	if c.ControllerCfg.OneWayBurst <= 0 {
		errs = append(errs, "controller.one_way_burst must be a positive integer")
	}
	if !strings.HasPrefix(c.ControllerCfg.Path, "/") {
		errs = append(errs, "controller.path must start with '/'")
	}
	if c.ControllerCfg.StatusInterval < 0 {
		errs = append(errs, "controller.status_interval must not be negative")
	}
	if c.ControllerCfg.Dialog.ConfirmResponse < 0 {
		errs = append(errs, "controller.dialog.confirm_response must not be negative")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}
