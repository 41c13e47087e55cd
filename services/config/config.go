// Package config loads the on-disk YAML configuration for the backtest
// service and the CLI runner.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"reversal-backtest/services/engine"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	ClickHouse ClickHouseConfig          `yaml:"clickhouse"`
	Backtest   BacktestConfig            `yaml:"backtest"`
	Strategy   engine.StrategyParameters `yaml:"strategy"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	FeeRate        float64 `yaml:"fee_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	PeriodsPerYear float64 `yaml:"periods_per_year"`
}

// Default returns a config that runs out of the box: default strategy
// parameters, local ClickHouse, 10k starting capital.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "backtest",
			Table:    "candles",
			Username: "default",
		},
		Backtest: BacktestConfig{
			InitialCapital: 10000,
			FeeRate:        0.001,
			SlippageRate:   0.0005,
			PeriodsPerYear: 365 * 24 * 12,
		},
		Strategy: engine.DefaultParameters(),
	}
}

// Load reads and validates a YAML config. Fields absent from the file keep
// their defaults, so a config file only needs to name what it overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Backtest.InitialCapital <= 0 {
		return errors.New("backtest.initial_capital must be positive")
	}
	if c.Backtest.FeeRate < 0 || c.Backtest.SlippageRate < 0 {
		return errors.New("backtest fee_rate and slippage_rate must be non-negative")
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		return errors.New("backtest.periods_per_year must be positive")
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy config invalid: %w", err)
	}
	return nil
}
