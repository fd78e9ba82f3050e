package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Instrument string           `json:"instrument" yaml:"instrument"`
	Account    AccountConfig    `json:"account" yaml:"account"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Indicators IndicatorsConfig `json:"indicators" yaml:"indicators"`
	Market     MarketConfig     `json:"market" yaml:"market"`
	State      StateConfig      `json:"state" yaml:"state"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Schedule   ScheduleConfig   `json:"schedule" yaml:"schedule"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// AccountConfig sizes positions.
type AccountConfig struct {
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	Leverage       float64 `json:"leverage" yaml:"leverage"`
}

// StrategyConfig holds the entry and exit rules.
type StrategyConfig struct {
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	VolatilityMin float64 `json:"volatility_min" yaml:"volatility_min"`
	VolatilityMax float64 `json:"volatility_max" yaml:"volatility_max"`
	Cooldown      string  `json:"cooldown" yaml:"cooldown"` // e.g. "30m"
}

type IndicatorsConfig struct {
	VolatilityWindow int    `json:"volatility_window" yaml:"volatility_window"`
	VolatilityMethod string `json:"volatility_method,omitempty" yaml:"volatility_method,omitempty"` // "range" or "true_range"
	ResampleInterval string `json:"resample_interval" yaml:"resample_interval"`
	EMASpan          int    `json:"ema_span" yaml:"ema_span"`
}

// MarketConfig selects and tunes the bar source.
type MarketConfig struct {
	Source      string        `json:"source" yaml:"source"` // "polygon", "alpaca", "oanda" or "csv"
	Lookback    string        `json:"lookback" yaml:"lookback"`
	BarInterval string        `json:"bar_interval" yaml:"bar_interval"`
	Timeout     string        `json:"timeout" yaml:"timeout"`
	CSVPath     string        `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
	Polygon     PolygonConfig `json:"polygon" yaml:"polygon"`
	Alpaca      AlpacaConfig  `json:"alpaca" yaml:"alpaca"`
	Oanda       OandaConfig   `json:"oanda" yaml:"oanda"`
}

// PolygonConfig names the environment variable holding the key rather than
// the key itself, so config files can be committed.
type PolygonConfig struct {
	BaseURL           string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv         string `json:"api_key_env" yaml:"api_key_env"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute"`
}

type AlpacaConfig struct {
	KeyEnv    string `json:"key_env" yaml:"key_env"`
	SecretEnv string `json:"secret_env" yaml:"secret_env"`
	Feed      string `json:"feed" yaml:"feed"` // "iex" or "sip"
}

type OandaConfig struct {
	TokenEnv string `json:"token_env" yaml:"token_env"`
	Practice bool   `json:"practice" yaml:"practice"`
	Price    string `json:"price" yaml:"price"` // "M", "B" or "A"
}

type StateConfig struct {
	Type   string `json:"type" yaml:"type"` // "file" or "sqlite"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type ScheduleConfig struct {
	Interval string `json:"interval" yaml:"interval"`
	Align    bool   `json:"align" yaml:"align"`
	Offset   string `json:"offset" yaml:"offset"`
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	Format  string `json:"format" yaml:"format"` // "json" or "console"
	Tracing bool   `json:"tracing" yaml:"tracing"`
}

// LoadFromFile loads configuration from a file (JSON or YAML). Fields
// missing from the file keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// duration parses s, giving zero when s is malformed. Validate rejects
// malformed durations, so the accessors below only see valid ones.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) Cooldown() time.Duration         { return duration(c.Strategy.Cooldown) }
func (c *Config) ResampleInterval() time.Duration { return duration(c.Indicators.ResampleInterval) }
func (c *Config) Lookback() time.Duration         { return duration(c.Market.Lookback) }
func (c *Config) BarInterval() time.Duration      { return duration(c.Market.BarInterval) }
func (c *Config) FetchTimeout() time.Duration     { return duration(c.Market.Timeout) }
func (c *Config) ScheduleInterval() time.Duration { return duration(c.Schedule.Interval) }
func (c *Config) ScheduleOffset() time.Duration   { return duration(c.Schedule.Offset) }

// PolygonAPIKey reads the key from the configured environment variable.
func (c *Config) PolygonAPIKey() string { return os.Getenv(c.Market.Polygon.APIKeyEnv) }

// AlpacaCredentials reads the key and secret from the environment.
func (c *Config) OandaToken() string { return os.Getenv(c.Market.Oanda.TokenEnv) }

func (c *Config) AlpacaCredentials() (key, secret string) {
	return os.Getenv(c.Market.Alpaca.KeyEnv), os.Getenv(c.Market.Alpaca.SecretEnv)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Instrument) == "" {
		return fmt.Errorf("instrument is required")
	}
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	if c.Strategy.TakeProfitPct <= 0 || c.Strategy.TakeProfitPct >= 1 {
		return fmt.Errorf("strategy.take_profit_pct must be between 0 and 1")
	}
	if c.Strategy.StopLossPct <= 0 || c.Strategy.StopLossPct >= 1 {
		return fmt.Errorf("strategy.stop_loss_pct must be between 0 and 1")
	}
	if c.Strategy.VolatilityMin < 0 || c.Strategy.VolatilityMax < c.Strategy.VolatilityMin {
		return fmt.Errorf("strategy volatility band [%v,%v] is invalid", c.Strategy.VolatilityMin, c.Strategy.VolatilityMax)
	}
	if c.Indicators.VolatilityWindow <= 0 {
		return fmt.Errorf("indicators.volatility_window must be positive")
	}
	switch c.Indicators.VolatilityMethod {
	case "", "range", "true_range":
	default:
		return fmt.Errorf("indicators.volatility_method must be 'range' or 'true_range'")
	}
	if c.Indicators.EMASpan <= 0 {
		return fmt.Errorf("indicators.ema_span must be positive")
	}

	durations := []struct {
		field    string
		value    string
		positive bool
	}{
		{"strategy.cooldown", c.Strategy.Cooldown, false},
		{"indicators.resample_interval", c.Indicators.ResampleInterval, true},
		{"market.lookback", c.Market.Lookback, true},
		{"market.bar_interval", c.Market.BarInterval, true},
		{"market.timeout", c.Market.Timeout, true},
		{"schedule.interval", c.Schedule.Interval, true},
		{"schedule.offset", c.Schedule.Offset, false},
	}
	for _, d := range durations {
		v, err := parseDuration(d.field, d.value)
		if err != nil {
			return err
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s must be positive", d.field)
		}
	}
	if c.ScheduleOffset() >= c.ScheduleInterval() {
		return fmt.Errorf("schedule.offset must be shorter than schedule.interval")
	}
	if c.Lookback() < c.BarInterval()*time.Duration(c.Indicators.VolatilityWindow) {
		return fmt.Errorf("market.lookback is shorter than indicators.volatility_window bars")
	}

	switch c.Market.Source {
	case "polygon":
		if c.Market.Polygon.APIKeyEnv == "" {
			return fmt.Errorf("market.polygon.api_key_env is required")
		}
		if c.Market.Polygon.RequestsPerMinute < 0 {
			return fmt.Errorf("market.polygon.requests_per_minute must not be negative")
		}
	case "alpaca":
		if c.Market.Alpaca.KeyEnv == "" || c.Market.Alpaca.SecretEnv == "" {
			return fmt.Errorf("market.alpaca key_env and secret_env are required")
		}
		switch strings.ToLower(c.Market.Alpaca.Feed) {
		case "", "iex", "sip":
		default:
			return fmt.Errorf("market.alpaca.feed must be iex or sip")
		}
	case "oanda":
		if c.Market.Oanda.TokenEnv == "" {
			return fmt.Errorf("market.oanda.token_env is required")
		}
		switch c.Market.Oanda.Price {
		case "", "M", "B", "A":
		default:
			return fmt.Errorf("market.oanda.price must be M, B or A")
		}
	case "csv":
		if c.Market.CSVPath == "" {
			return fmt.Errorf("market.csv_path required for csv source")
		}
	default:
		return fmt.Errorf("market.source must be one of polygon, alpaca, oanda, csv")
	}

	switch c.State.Type {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path required for file type")
		}
	case "sqlite":
		if c.State.DBPath == "" {
			return fmt.Errorf("state.db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("state.type must be 'file' or 'sqlite'")
	}

	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && c.Journal.TradesFile == "" {
		return fmt.Errorf("journal trades_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Default returns the configuration the engine was tuned with: QQQ minute
// bars, 20x leverage on 1200 of capital.
func Default() *Config {
	return &Config{
		Instrument: "QQQ",
		Account: AccountConfig{
			InitialBalance: 1200,
			Leverage:       20,
		},
		Strategy: StrategyConfig{
			TakeProfitPct: 0.0005,
			StopLossPct:   0.0015,
			VolatilityMin: 8,
			VolatilityMax: 18,
			Cooldown:      "30m",
		},
		Indicators: IndicatorsConfig{
			VolatilityWindow: 14,
			VolatilityMethod: "range",
			ResampleInterval: "5m",
			EMASpan:          200,
		},
		Market: MarketConfig{
			Source:      "polygon",
			Lookback:    "250m",
			BarInterval: "1m",
			Timeout:     "15s",
			Polygon: PolygonConfig{
				BaseURL:           "https://api.polygon.io",
				APIKeyEnv:         "POLYGON_API_KEY",
				RequestsPerMinute: 5,
			},
			Alpaca: AlpacaConfig{
				KeyEnv:    "APCA_API_KEY_ID",
				SecretEnv: "APCA_API_SECRET_KEY",
				Feed:      "iex",
			},
			Oanda: OandaConfig{
				TokenEnv: "OANDA_TOKEN",
				Practice: true,
				Price:    "M",
			},
		},
		State: StateConfig{
			Type: "file",
			Path: "./trading_state.json",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trading_journal.csv",
		},
		Schedule: ScheduleConfig{
			Interval: "1m",
			Align:    true,
			Offset:   "5s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
