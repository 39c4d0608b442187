// Package config loads agent configuration from YAML with environment
// variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/liveagent/internal/risk"
)

// Config is the full agent configuration. Money fields are decimal strings;
// the InitialCapital and Limits accessors parse and validate them, nothing is
// ever stored as a float.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`
	Trading  TradingConfig  `yaml:"trading"`
	Risk     RiskConfig     `yaml:"risk"`
	State    StateConfig    `yaml:"state"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

type ExchangeConfig struct {
	ID           string  `yaml:"id"`
	APIKey       string  `yaml:"api_key"`
	APISecret    string  `yaml:"api_secret"`
	PaperTrading bool    `yaml:"paper_trading"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type TradingConfig struct {
	InitialCapital string `yaml:"initial_capital"`
	QuoteCurrency  string `yaml:"quote_currency"`
}

type RiskConfig struct {
	MaxPositionSize     string `yaml:"max_position_size"`
	MaxDrawdownPercent  string `yaml:"max_drawdown_percent"`
	DailyLossLimit      string `yaml:"daily_loss_limit"`
	MaxOpenTrades       int    `yaml:"max_open_trades"`
	PositionRiskPercent string `yaml:"position_risk_percent"`
}

type StateConfig struct {
	Path       string `yaml:"path"`
	BackupDir  string `yaml:"backup_dir"`
	LedgerPath string `yaml:"ledger_path"`
}

type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns the configuration used when no file is present: paper
// trading against a sandbox venue with conservative limits.
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			ID:           "binance",
			PaperTrading: true,
			RateLimitRPS: 10,
		},
		Database: DatabaseConfig{
			QueryTimeout: 10 * time.Second,
		},
		Trading: TradingConfig{
			InitialCapital: "10000",
			QuoteCurrency:  "USDT",
		},
		Risk: RiskConfig{
			MaxPositionSize:     "1000",
			MaxDrawdownPercent:  "20",
			DailyLossLimit:      "200",
			MaxOpenTrades:       3,
			PositionRiskPercent: "2",
		},
		State: StateConfig{
			Path:       "agent_state.json",
			BackupDir:  "./backups",
			LedgerPath: "agent_ledger.json",
		},
		Monitor: MonitorConfig{
			ListenAddr: ":8000",
		},
	}
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if _, err := cfg.InitialCapital(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Limits(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("EXCHANGE_ID"); v != "" {
		cfg.Exchange.ID = v
	}
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		cfg.Exchange.PaperTrading = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Monitor.WebhookURL = v
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		cfg.Trading.InitialCapital = v
	}
}

// InitialCapital parses the configured starting capital.
func (c Config) InitialCapital() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(c.Trading.InitialCapital)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: initial_capital %q: %w", c.Trading.InitialCapital, err)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: initial_capital %s must be positive", v)
	}
	return v, nil
}

// Limits builds validated risk limits from the configured strings.
func (c Config) Limits() (risk.Limits, error) {
	parse := func(field, val string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("config: risk.%s %q: %w", field, val, err)
		}
		return d, nil
	}

	maxPos, err := parse("max_position_size", c.Risk.MaxPositionSize)
	if err != nil {
		return risk.Limits{}, err
	}
	maxDD, err := parse("max_drawdown_percent", c.Risk.MaxDrawdownPercent)
	if err != nil {
		return risk.Limits{}, err
	}
	dailyLoss, err := parse("daily_loss_limit", c.Risk.DailyLossLimit)
	if err != nil {
		return risk.Limits{}, err
	}
	posRisk, err := parse("position_risk_percent", c.Risk.PositionRiskPercent)
	if err != nil {
		return risk.Limits{}, err
	}

	return risk.NewLimits(maxPos, maxDD, dailyLoss, c.Risk.MaxOpenTrades, posRisk)
}
