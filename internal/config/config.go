// Package config provides configuration management for the execution bridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Sizing  SizingConfig  `mapstructure:"sizing"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TradingConfig holds trading defaults.
type TradingConfig struct {
	Mode       string `mapstructure:"mode"` // "sim", "live"
	DefaultTIF string `mapstructure:"default_tif"`
	Strategy   string `mapstructure:"strategy"` // strategy/version tag stamped on orders
}

// RiskConfig holds the session guardrail limits.
type RiskConfig struct {
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
}

// SizingConfig holds position-sizing tunables.
type SizingConfig struct {
	DefaultRiskPercent  float64 `mapstructure:"default_risk_percent"`
	MaxCapitalPercent   float64 `mapstructure:"max_capital_percent"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	MarginFactor        float64 `mapstructure:"margin_factor"`
}

// GatewayConfig holds broker gateway connection settings and timeouts.
type GatewayConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ClientID        int           `mapstructure:"client_id"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	SimEquity       float64       `mapstructure:"sim_equity"` // starting equity in sim mode
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tws-bridge"
	}
	return filepath.Join(home, ".config", "tws-bridge")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("TWS_BRIDGE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "sim")
	v.SetDefault("trading.default_tif", "DAY")
	v.SetDefault("trading.strategy", "manual")

	v.SetDefault("risk.max_daily_loss", 1000.0)
	v.SetDefault("risk.max_consecutive_losses", 3)

	v.SetDefault("sizing.default_risk_percent", 1.0)
	v.SetDefault("sizing.max_capital_percent", 50.0)
	v.SetDefault("sizing.max_position_fraction", 0.25)
	v.SetDefault("sizing.margin_factor", 0.5)

	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 7497)
	v.SetDefault("gateway.client_id", 1)
	v.SetDefault("gateway.ack_timeout", 5*time.Second)
	v.SetDefault("gateway.snapshot_timeout", 5*time.Second)
	v.SetDefault("gateway.sim_equity", 100000.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Risk.MaxDailyLoss < 0 {
		return fmt.Errorf("risk.max_daily_loss must be >= 0, got %.2f", c.Risk.MaxDailyLoss)
	}
	if c.Risk.MaxConsecutiveLosses < 0 {
		return fmt.Errorf("risk.max_consecutive_losses must be >= 0, got %d", c.Risk.MaxConsecutiveLosses)
	}
	if c.Sizing.DefaultRiskPercent <= 0 || c.Sizing.DefaultRiskPercent > 100 {
		return fmt.Errorf("sizing.default_risk_percent must be in (0,100], got %.2f", c.Sizing.DefaultRiskPercent)
	}
	if c.Sizing.MaxCapitalPercent <= 0 || c.Sizing.MaxCapitalPercent > 100 {
		return fmt.Errorf("sizing.max_capital_percent must be in (0,100], got %.2f", c.Sizing.MaxCapitalPercent)
	}
	if c.Sizing.MaxPositionFraction <= 0 || c.Sizing.MaxPositionFraction > 1 {
		return fmt.Errorf("sizing.max_position_fraction must be in (0,1], got %.2f", c.Sizing.MaxPositionFraction)
	}
	if c.Sizing.MarginFactor <= 0 {
		return fmt.Errorf("sizing.margin_factor must be > 0, got %.2f", c.Sizing.MarginFactor)
	}
	if c.Gateway.AckTimeout <= 0 || c.Gateway.SnapshotTimeout <= 0 {
		return fmt.Errorf("gateway timeouts must be positive")
	}
	return nil
}

// IsSimMode reports whether the bridge runs against the simulated gateway.
func (c *Config) IsSimMode() bool {
	return c.Trading.Mode != "live"
}
