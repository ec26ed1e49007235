// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"lowrider-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig  `mapstructure:"trading"`
	Strategy    StrategyConfig `mapstructure:"strategy"`
	Session     SessionConfig  `mapstructure:"session"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds instrument and sizing configuration.
type TradingConfig struct {
	Mode             string  `mapstructure:"mode"` // "live", "paper", "backtest"
	InstrumentSymbol string  `mapstructure:"instrument_symbol"`
	PipSize          float64 `mapstructure:"pip_size"`
	CommissionPerLot float64 `mapstructure:"commission_per_lot"`
	LotSize          float64 `mapstructure:"lot_size"`
}

// StrategyConfig holds ladder strategy parameters.
type StrategyConfig struct {
	RSIPeriod        int     `mapstructure:"rsi_period"`
	RSIOversoldLevel float64 `mapstructure:"rsi_oversold_level"`
	RungSpacingPips  float64 `mapstructure:"rung_spacing_pips"`
	TPTargetPips     float64 `mapstructure:"tp_target_pips"`
	MaxLadderDepth   int     `mapstructure:"max_ladder_depth"`
}

// SessionConfig holds the live session loop parameters.
type SessionConfig struct {
	PollIntervalMinutes int     `mapstructure:"poll_interval_minutes"`
	MaxSpreadPips       float64 `mapstructure:"max_spread_pips"`
	FetchCount          int     `mapstructure:"fetch_count"` // candles fetched per tick
	CandlesResolution   string  `mapstructure:"candles_resolution"`
}

// Credentials holds API credentials.
type Credentials struct {
	TradeLocker TradeLockerCredentials `mapstructure:"tradelocker"`
}

// TradeLockerCredentials holds TradeLocker API credentials.
type TradeLockerCredentials struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Server   string `mapstructure:"server"`
	BaseURL  string `mapstructure:"base_url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/lowrider-trader"
	}
	return filepath.Join(home, ".config", "lowrider-trader")
}

// Default returns the built-in configuration: EURUSD on 1-minute candles
// with a 7-period RSI, 1-pip rung spacing and a 1.3-pip take-profit.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:             "paper",
			InstrumentSymbol: models.EURUSD.Symbol,
			PipSize:          models.EURUSD.PipSize,
			CommissionPerLot: 0.0,
			LotSize:          0.01,
		},
		Strategy: StrategyConfig{
			RSIPeriod:        7,
			RSIOversoldLevel: 30,
			RungSpacingPips:  1.0,
			TPTargetPips:     1.3,
			MaxLadderDepth:   10,
		},
		Session: SessionConfig{
			PollIntervalMinutes: 1,
			MaxSpreadPips:       0.6,
			FetchCount:          70,
			CandlesResolution:   "1m",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Missing file is fine, defaults apply.
			return nil
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADELOCKER_EMAIL"); v != "" {
		cfg.Credentials.TradeLocker.Email = v
	}
	if v := os.Getenv("TRADELOCKER_PASSWORD"); v != "" {
		cfg.Credentials.TradeLocker.Password = v
	}
	if v := os.Getenv("TRADELOCKER_SERVER"); v != "" {
		cfg.Credentials.TradeLocker.Server = v
	}
	if v := os.Getenv("TRADELOCKER_BASE_URL"); v != "" {
		cfg.Credentials.TradeLocker.BaseURL = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "", "live", "paper", "backtest":
	default:
		return fmt.Errorf("invalid trading mode: %s (must be 'live', 'paper' or 'backtest')", c.Trading.Mode)
	}

	if c.Trading.InstrumentSymbol == "" {
		return fmt.Errorf("instrument_symbol must be set")
	}
	if c.Trading.PipSize <= 0 {
		return fmt.Errorf("pip_size must be positive")
	}
	if c.Trading.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive")
	}
	if c.Trading.CommissionPerLot < 0 {
		return fmt.Errorf("commission_per_lot must be non-negative")
	}

	if c.Strategy.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be at least 2")
	}
	if c.Strategy.RSIOversoldLevel <= 0 || c.Strategy.RSIOversoldLevel >= 100 {
		return fmt.Errorf("rsi_oversold_level must be between 0 and 100")
	}
	if c.Strategy.RungSpacingPips <= 0 {
		return fmt.Errorf("rung_spacing_pips must be positive")
	}
	if c.Strategy.TPTargetPips <= 0 {
		return fmt.Errorf("tp_target_pips must be positive")
	}
	if c.Strategy.MaxLadderDepth < 1 {
		return fmt.Errorf("max_ladder_depth must be at least 1")
	}

	if c.Session.PollIntervalMinutes < 1 {
		return fmt.Errorf("poll_interval_minutes must be at least 1")
	}
	if c.Session.MaxSpreadPips <= 0 {
		return fmt.Errorf("max_spread_pips must be positive")
	}
	if c.Session.FetchCount < c.Strategy.RSIPeriod+1 {
		return fmt.Errorf("fetch_count must cover the RSI warmup period")
	}

	return nil
}

// Instrument returns the configured instrument. Known symbols use their
// catalog pip values; unknown symbols are built from the configured pip
// size.
func (c *Config) Instrument() models.Instrument {
	if inst, ok := models.InstrumentBySymbol(c.Trading.InstrumentSymbol); ok {
		return inst
	}
	return models.Instrument{
		Symbol:              c.Trading.InstrumentSymbol,
		PipSize:             c.Trading.PipSize,
		DollarsPerPipPerLot: 10.0,
	}
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
