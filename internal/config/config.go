package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/condorrun/internal/confirm"
	"github.com/sawpanic/condorrun/internal/execution"
	"github.com/sawpanic/condorrun/internal/infrastructure/db"
	"github.com/sawpanic/condorrun/internal/pricing"
	"github.com/sawpanic/condorrun/internal/risk"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// DefaultPath is used when neither a flag nor CONDORRUN_CONFIG names a file
const DefaultPath = "config/condorrun.yaml"

// Config is the complete bot configuration
type Config struct {
	Watchlist       []string         `yaml:"watchlist"`
	PollingInterval time.Duration    `yaml:"polling_interval"`
	Workers         int              `yaml:"workers"`
	Account         AccountConfig    `yaml:"account"`
	Strategies      StrategiesConfig `yaml:"strategies"`
	Risk            RiskConfig       `yaml:"risk"`
	Safeguards      SafeguardsConfig `yaml:"safeguards"`
	Execution       ExecutionConfig  `yaml:"execution"`
	Market          MarketConfig     `yaml:"market"`
	Database        db.Config        `yaml:"database"`
	Monitor         MonitorConfig    `yaml:"monitor"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// AccountConfig seeds the paper portfolio
type AccountConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
}

// StrategiesConfig holds one block per strategy
type StrategiesConfig struct {
	IronCondor     SpreadConfig `yaml:"iron_condor"`
	IronButterfly  SpreadConfig `yaml:"iron_butterfly"`
	TrendFollowing TrendConfig  `yaml:"trend_following"`
}

// SpreadConfig parameterises a four-leg credit spread
type SpreadConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WidthPercent   float64       `yaml:"width_percent"`
	BodyRatio      float64       `yaml:"body_ratio"`
	WingRatio      float64       `yaml:"wing_ratio"`
	MinCredit      float64       `yaml:"min_credit"`
	ExpirationDays int           `yaml:"expiration_days"`
	RiskFreeRate   float64       `yaml:"risk_free_rate"`
	Pricing        PricingConfig `yaml:"pricing"`
	POPMethod      string        `yaml:"pop_method"` // analytic, simulated or empty for auto
	POPSamples     int           `yaml:"pop_samples"`
}

// PricingConfig selects the model and its knobs
type PricingConfig struct {
	Model          string `yaml:"model"`
	pricing.Params `yaml:",inline"`
}

// TrendConfig drives the advisory trend signal
type TrendConfig struct {
	Enabled       bool    `yaml:"enabled"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	HistoryBars   int     `yaml:"history_bars"`
}

// RiskConfig mirrors risk.Limits
type RiskConfig struct {
	MaxPortfolioRisk   float64            `yaml:"max_portfolio_risk"`
	MaxPositionRisk    float64            `yaml:"max_position_risk"`
	SectorLimits       map[string]float64 `yaml:"sector_limits"`
	DefaultSectorLimit float64            `yaml:"default_sector_limit"`
	DailyLossLimit     float64            `yaml:"daily_loss_limit"`
	Liquid             []string           `yaml:"liquid"`
	Sectors            map[string]string  `yaml:"sectors"`
}

// SafeguardsConfig controls the confirmation gate
type SafeguardsConfig struct {
	RequiredConfirmations int    `yaml:"required_confirmations"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	OverrideSecret        string `yaml:"override_secret"`
	AutoConfirm           bool   `yaml:"auto_confirm"`
}

// ExecutionConfig controls order placement
type ExecutionConfig struct {
	AutoPlaceTrades    bool    `yaml:"auto_place_trades"`
	ConfirmBeforeTrade bool    `yaml:"confirm_before_trade"`
	Contracts          int     `yaml:"contracts"`
	Slippage           float64 `yaml:"slippage"`
	EmergencyStopFile  string  `yaml:"emergency_stop_file"`
	Username           string  `yaml:"username"`
	Password           string  `yaml:"password"`
	MFACode            string  `yaml:"mfa_code"`
}

// MarketConfig selects and decorates the market data source
type MarketConfig struct {
	File    string        `yaml:"file"`
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	Breaker BreakerConfig `yaml:"breaker"`
	Cache   CacheConfig   `yaml:"cache"`
}

// BreakerConfig tunes the market data circuit breaker
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	Timeout             time.Duration `yaml:"timeout"`
}

// CacheConfig enables the Redis quote cache
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MonitorConfig controls the read-only HTTP server
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig sets the zerolog level
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the reference configuration
func Default() Config {
	condor := spreadFromShape(strategy.DefaultShape(strategy.IronCondor))
	butterfly := spreadFromShape(strategy.DefaultShape(strategy.IronButterfly))
	limits := risk.DefaultLimits()
	trend := strategy.DefaultTrendConfig()

	return Config{
		Watchlist:       []string{"SPY", "QQQ", "AAPL", "MSFT"},
		PollingInterval: 5 * time.Minute,
		Workers:         4,
		Account:         AccountConfig{InitialBalance: 100000},
		Strategies: StrategiesConfig{
			IronCondor:    condor,
			IronButterfly: butterfly,
			TrendFollowing: TrendConfig{
				Enabled:       false,
				StopLossPct:   trend.StopLossPercent,
				TakeProfitPct: trend.TakeProfitPercent,
				HistoryBars:   100,
			},
		},
		Risk: RiskConfig{
			MaxPortfolioRisk:   limits.MaxPortfolioRisk,
			MaxPositionRisk:    limits.MaxPositionRisk,
			SectorLimits:       limits.SectorLimits,
			DefaultSectorLimit: limits.DefaultSectorLimit,
			DailyLossLimit:     limits.DailyLossLimit,
			Liquid:             limits.Liquid,
			Sectors:            limits.Sectors,
		},
		Safeguards: SafeguardsConfig{
			RequiredConfirmations: 2,
			TimeoutSeconds:        30,
		},
		Execution: ExecutionConfig{
			AutoPlaceTrades:    false,
			ConfirmBeforeTrade: true,
			Contracts:          1,
			EmergencyStopFile:  "emergency_stop",
			Username:           "paper",
		},
		Market: MarketConfig{
			File:  "config/market.yaml",
			RPS:   5,
			Burst: 5,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 3,
				Timeout:             time.Minute,
			},
			Cache: CacheConfig{Addr: "localhost:6379", TTL: 30 * time.Second},
		},
		Database: db.DefaultConfig(),
		Monitor:  MonitorConfig{Host: "127.0.0.1", Port: 8080},
		Logging:  LoggingConfig{Level: "info"},
	}
}

func spreadFromShape(s strategy.Shape) SpreadConfig {
	return SpreadConfig{
		Enabled:        s.Enabled,
		WidthPercent:   s.WidthPercent,
		BodyRatio:      s.BodyRatio,
		WingRatio:      s.WingRatio,
		MinCredit:      s.MinCredit,
		ExpirationDays: s.ExpirationDays,
		RiskFreeRate:   s.RiskFreeRate,
		Pricing:        PricingConfig{Model: string(s.Model), Params: s.Params},
		POPMethod:      string(s.POP),
		POPSamples:     s.POPSamples,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path falls back to CONDORRUN_CONFIG, then DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONDORRUN_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets and deployment knobs come from the environment
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONDORRUN_OVERRIDE_SECRET"); v != "" {
		c.Safeguards.OverrideSecret = v
	}
	if v := os.Getenv("CONDORRUN_AUTO_TRADE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Execution.AutoPlaceTrades = b
		}
	}
	if v := os.Getenv("CONDORRUN_BROKER_USERNAME"); v != "" {
		c.Execution.Username = v
	}
	if v := os.Getenv("CONDORRUN_BROKER_PASSWORD"); v != "" {
		c.Execution.Password = v
	}
	if v := os.Getenv("CONDORRUN_BROKER_MFA_CODE"); v != "" {
		c.Execution.MFACode = v
	}
	if v := os.Getenv("CONDORRUN_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
		c.Database.Enabled = true
	}
	if v := os.Getenv("CONDORRUN_REDIS_ADDR"); v != "" {
		c.Market.Cache.Addr = v
		c.Market.Cache.Enabled = true
	}
	if v := os.Getenv("CONDORRUN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Watchlist) == 0 {
		return errors.New("watchlist cannot be empty")
	}
	for _, s := range c.Watchlist {
		if strings.TrimSpace(s) == "" {
			return errors.New("watchlist contains an empty symbol")
		}
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %s", c.PollingInterval)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive, got %.2f", c.Account.InitialBalance)
	}

	if !c.Strategies.IronCondor.Enabled && !c.Strategies.IronButterfly.Enabled {
		return errors.New("at least one of iron_condor or iron_butterfly must be enabled")
	}
	if _, err := c.Shapes(); err != nil {
		return err
	}
	if t := c.Strategies.TrendFollowing; t.Enabled {
		if t.StopLossPct <= 0 || t.TakeProfitPct <= 0 {
			return errors.New("trend_following stop_loss_pct and take_profit_pct must be positive")
		}
		if t.HistoryBars < strategy.MinTrendBars {
			return fmt.Errorf("trend_following history_bars must be at least %d", strategy.MinTrendBars)
		}
	}

	if err := c.Risk.validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	if c.Safeguards.RequiredConfirmations < 1 {
		return fmt.Errorf("safeguards.required_confirmations must be at least 1, got %d", c.Safeguards.RequiredConfirmations)
	}
	if c.Safeguards.TimeoutSeconds <= 0 {
		return fmt.Errorf("safeguards.timeout_seconds must be positive, got %d", c.Safeguards.TimeoutSeconds)
	}

	if c.Execution.Contracts < 1 {
		return fmt.Errorf("execution.contracts must be at least 1, got %d", c.Execution.Contracts)
	}
	if c.Execution.Slippage < 0 || c.Execution.Slippage >= 1 {
		return fmt.Errorf("execution.slippage must be in [0, 1), got %f", c.Execution.Slippage)
	}

	if c.Market.RPS < 0 || c.Market.Burst < 0 {
		return errors.New("market rps and burst cannot be negative")
	}
	if c.Market.Cache.Enabled && c.Market.Cache.Addr == "" {
		return errors.New("market.cache.addr cannot be empty when the cache is enabled")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New("database.dsn cannot be empty when the database is enabled")
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("monitor.port out of range: %d", c.Monitor.Port)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (r RiskConfig) validate() error {
	for name, v := range map[string]float64{
		"max_portfolio_risk":   r.MaxPortfolioRisk,
		"max_position_risk":    r.MaxPositionRisk,
		"default_sector_limit": r.DefaultSectorLimit,
		"daily_loss_limit":     r.DailyLossLimit,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %f", name, v)
		}
	}
	for sector, v := range r.SectorLimits {
		if v <= 0 || v > 1 {
			return fmt.Errorf("sector_limits.%s must be in (0, 1], got %f", sector, v)
		}
	}
	if len(r.Liquid) == 0 {
		return errors.New("liquid cannot be empty")
	}
	return nil
}

// Shapes returns the builder shapes in a fixed order, condor first
func (c *Config) Shapes() ([]strategy.Shape, error) {
	condor, err := c.Strategies.IronCondor.Shape(strategy.IronCondor)
	if err != nil {
		return nil, err
	}
	butterfly, err := c.Strategies.IronButterfly.Shape(strategy.IronButterfly)
	if err != nil {
		return nil, err
	}
	return []strategy.Shape{condor, butterfly}, nil
}

// Shape converts the block into a validated strategy.Shape
func (s SpreadConfig) Shape(kind strategy.Kind) (strategy.Shape, error) {
	model, err := pricing.ParseModel(s.Pricing.Model)
	if err != nil {
		return strategy.Shape{}, fmt.Errorf("%s: %w", kind, err)
	}
	shape := strategy.Shape{
		Kind:           kind,
		Enabled:        s.Enabled,
		WidthPercent:   s.WidthPercent,
		BodyRatio:      s.BodyRatio,
		WingRatio:      s.WingRatio,
		MinCredit:      s.MinCredit,
		ExpirationDays: s.ExpirationDays,
		RiskFreeRate:   s.RiskFreeRate,
		Model:          model,
		Params:         s.Pricing.Params,
		POP:            strategy.POPMethod(strings.ToLower(s.POPMethod)),
		POPSamples:     s.POPSamples,
	}
	if err := shape.Validate(); err != nil {
		return strategy.Shape{}, err
	}
	return shape, nil
}

// Trend converts the trend block
func (c *Config) Trend() strategy.TrendConfig {
	t := c.Strategies.TrendFollowing
	return strategy.TrendConfig{Enabled: t.Enabled, StopLossPercent: t.StopLossPct, TakeProfitPercent: t.TakeProfitPct}
}

// Limits converts the risk block
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		MaxPortfolioRisk:   c.Risk.MaxPortfolioRisk,
		MaxPositionRisk:    c.Risk.MaxPositionRisk,
		SectorLimits:       c.Risk.SectorLimits,
		DefaultSectorLimit: c.Risk.DefaultSectorLimit,
		DailyLossLimit:     c.Risk.DailyLossLimit,
		Liquid:             c.Risk.Liquid,
		Sectors:            c.Risk.Sectors,
	}
}

// ConfirmSettings converts the safeguards block
func (c *Config) ConfirmSettings() confirm.Settings {
	return confirm.Settings{
		RequiredConfirmations: c.Safeguards.RequiredConfirmations,
		Timeout:               time.Duration(c.Safeguards.TimeoutSeconds) * time.Second,
		OverrideSecret:        c.Safeguards.OverrideSecret,
	}
}

// AutoConfirm reports whether the gate should affirm without prompting
func (c *Config) AutoConfirm() bool {
	return c.Safeguards.AutoConfirm || !c.Execution.ConfirmBeforeTrade
}

// Credentials returns the broker login
func (c *Config) Credentials() execution.Credentials {
	return execution.Credentials{
		Username: c.Execution.Username,
		Password: c.Execution.Password,
		MFACode:  c.Execution.MFACode,
	}
}

// LogLevel returns the parsed zerolog level, info when unset
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil || c.Logging.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
