package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Trading struct {
		Symbols              []string `yaml:"symbols"`
		InitialBalance       float64  `yaml:"initial_balance"`
		MaxLeverage          int      `yaml:"max_leverage"`
		StateFile            string   `yaml:"state_file"`
		CycleIntervalSec     int      `yaml:"cycle_interval_sec"`
		MaxConsecutiveErrors int      `yaml:"max_consecutive_errors"`
	} `yaml:"trading"`
	MarketData struct {
		BaseURL        string `yaml:"base_url"`
		StreamURL      string `yaml:"stream_url"`
		QuoteAsset     string `yaml:"quote_asset"`
		TimeoutSec     int    `yaml:"timeout_sec"`
		PriceMaxAgeSec int    `yaml:"price_max_age_sec"`
		Stream         bool   `yaml:"stream"`
		Mock           bool   `yaml:"mock"`
	} `yaml:"market_data"`
	Decision struct {
		BaseURL    string `yaml:"base_url"`
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"decision"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath    string `yaml:"sqlite_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"database"`
	Redis struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		Prefix         string `yaml:"prefix"`
		SnapshotTTLSec int    `yaml:"snapshot_ttl_sec"`
	} `yaml:"redis"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Schedule struct {
		DailyReportCron string `yaml:"daily_report_cron"`
		PruneCron       string `yaml:"prune_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env (if present), then the YAML file, then applies
// environment variable overrides and defaults. A missing YAML file is not
// an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.MarketData.BaseURL, "BINANCE_BASE_URL")
	setString(&c.Decision.BaseURL, "DECISION_BASE_URL")
	setString(&c.Decision.APIKey, "DECISION_API_KEY")
	setString(&c.Decision.Model, "DECISION_MODEL")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Proxy, "HTTPS_PROXY")

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Trading.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Trading.Symbols = append(c.Trading.Symbols, s)
			}
		}
	}
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.InitialBalance = f
		}
	}
	if v := os.Getenv("CYCLE_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trading.CycleIntervalSec = n
		}
	}
	if v := os.Getenv("MOCK_MARKET_DATA"); v != "" {
		c.MarketData.Mock = v == "true" || v == "1"
	}
}

func (c *Config) applyDefaults() {
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTC", "ETH", "SOL", "BNB", "DOGE", "XRP"}
	}
	for i, s := range c.Trading.Symbols {
		c.Trading.Symbols[i] = strings.ToUpper(s)
	}
	if c.Trading.InitialBalance == 0 {
		c.Trading.InitialBalance = 10000
	}
	if c.Trading.MaxLeverage == 0 {
		c.Trading.MaxLeverage = 20
	}
	if c.Trading.StateFile == "" {
		c.Trading.StateFile = "data/ledger_state.json"
	}
	if c.Trading.CycleIntervalSec == 0 {
		c.Trading.CycleIntervalSec = 1800
	}
	if c.Trading.MaxConsecutiveErrors == 0 {
		c.Trading.MaxConsecutiveErrors = 10
	}
	if c.MarketData.BaseURL == "" {
		c.MarketData.BaseURL = "https://api.binance.com"
	}
	if c.MarketData.StreamURL == "" {
		c.MarketData.StreamURL = "wss://stream.binance.com:9443"
	}
	if c.MarketData.QuoteAsset == "" {
		c.MarketData.QuoteAsset = "USDT"
	}
	if c.MarketData.TimeoutSec == 0 {
		c.MarketData.TimeoutSec = 10
	}
	if c.MarketData.PriceMaxAgeSec == 0 {
		c.MarketData.PriceMaxAgeSec = 30
	}
	if c.Decision.Model == "" {
		c.Decision.Model = "qwen/qwen-2.5-72b-instruct"
	}
	if c.Decision.TimeoutSec == 0 {
		c.Decision.TimeoutSec = 60
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/sentinel.db"
	}
	if c.Database.RetentionDays == 0 {
		c.Database.RetentionDays = 30
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "sentinel"
	}
	if c.Redis.SnapshotTTLSec == 0 {
		c.Redis.SnapshotTTLSec = 7200
	}
	if c.Schedule.DailyReportCron == "" {
		c.Schedule.DailyReportCron = "0 0 8 * * *"
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 30 3 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance must be positive")
	}
	if c.Trading.MaxLeverage < 1 {
		return fmt.Errorf("trading.max_leverage must be at least 1")
	}
	if c.Trading.CycleIntervalSec < 10 {
		return fmt.Errorf("trading.cycle_interval_sec must be at least 10, got %d", c.Trading.CycleIntervalSec)
	}
	if c.Trading.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("trading.max_consecutive_errors must be at least 1")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Database.RetentionDays < 1 {
		return fmt.Errorf("database.retention_days must be at least 1")
	}
	return nil
}

func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Trading.CycleIntervalSec) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.MarketData.TimeoutSec) * time.Second
}

func (c *Config) PriceMaxAge() time.Duration {
	return time.Duration(c.MarketData.PriceMaxAgeSec) * time.Second
}

func (c *Config) DecisionTimeout() time.Duration {
	return time.Duration(c.Decision.TimeoutSec) * time.Second
}

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Redis.SnapshotTTLSec) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}
