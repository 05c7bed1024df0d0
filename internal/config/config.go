// Package config loads the simulator configuration from YAML and watches it
// for changes.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jag2430/fix-executor/internal/execution"
)

// AppConfig is the full configuration for the simulator process.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Execution  ExecutionConfig  `yaml:"execution"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type DatabaseConfig struct {
	// Path is the sqlite file for the report journal. Empty keeps the
	// journal in memory.
	Path string `yaml:"path"`
}

type MarketDataConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	DefaultPrice    float64 `yaml:"default_price"`
}

// ExecutionConfig mirrors execution.Config in YAML-friendly types.
type ExecutionConfig struct {
	FillMode              string  `yaml:"fill_mode"`
	PartialFillPercentage int     `yaml:"partial_fill_percentage"`
	DelayMs               int64   `yaml:"delay_ms"`
	MinFillDelayMs        int64   `yaml:"min_fill_delay_ms"`
	MaxFillDelayMs        int64   `yaml:"max_fill_delay_ms"`
	RejectProbability     float64 `yaml:"reject_probability"`
	PriceSlippage         float64 `yaml:"price_slippage"`
	MinPartialFillQty     int64   `yaml:"min_partial_fill_qty"`
	MaxPartialFills       int     `yaml:"max_partial_fills"`
	RejectReason          string  `yaml:"reject_reason"`
	LogExecutions         bool    `yaml:"log_executions"`
}

// ToEngineConfig converts to the engine's policy type.
func (e ExecutionConfig) ToEngineConfig() (execution.Config, error) {
	mode, err := execution.ParseFillMode(e.FillMode)
	if err != nil {
		return execution.Config{}, err
	}
	cfg := execution.Config{
		FillMode:              mode,
		PartialFillPercentage: e.PartialFillPercentage,
		DelayMs:               e.DelayMs,
		MinFillDelayMs:        e.MinFillDelayMs,
		MaxFillDelayMs:        e.MaxFillDelayMs,
		RejectProbability:     e.RejectProbability,
		PriceSlippage:         decimal.NewFromFloat(e.PriceSlippage),
		MinPartialFillQty:     e.MinPartialFillQty,
		MaxPartialFills:       e.MaxPartialFills,
		RejectReason:          e.RejectReason,
		LogExecutions:         e.LogExecutions,
	}
	if err := cfg.Validate(); err != nil {
		return execution.Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	engine := execution.DefaultConfig()
	return AppConfig{
		Env:    "development",
		Server: ServerConfig{Port: 8080},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-me",
			APIKey:    "test_key",
			APISecret: "test_secret",
		},
		MarketData: MarketDataConfig{
			CacheTTLSeconds: 30,
			DefaultPrice:    100.00,
		},
		Execution: ExecutionConfig{
			FillMode:              string(engine.FillMode),
			PartialFillPercentage: engine.PartialFillPercentage,
			DelayMs:               engine.DelayMs,
			MinFillDelayMs:        engine.MinFillDelayMs,
			MaxFillDelayMs:        engine.MaxFillDelayMs,
			RejectProbability:     engine.RejectProbability,
			MinPartialFillQty:     engine.MinPartialFillQty,
			MaxPartialFills:       engine.MaxPartialFills,
			RejectReason:          engine.RejectReason,
			LogExecutions:         engine.LogExecutions,
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if _, err := cfg.Execution.ToEngineConfig(); err != nil {
		return cfg, fmt.Errorf("invalid execution config: %w", err)
	}
	return cfg, nil
}
