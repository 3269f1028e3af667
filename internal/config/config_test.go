package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"BTC", "ETH", "SOL", "BNB", "DOGE", "XRP"}, cfg.Trading.Symbols)
	assert.Equal(t, 10000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 30*time.Minute, cfg.CycleInterval())
	assert.Equal(t, 10, cfg.Trading.MaxConsecutiveErrors)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.Equal(t, "https://api.binance.com", cfg.MarketData.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbols: [btc, eth]
  initial_balance: 5000
  cycle_interval_sec: 300
market_data:
  stream: true
redis:
  addr: localhost:6379
log:
  level: debug
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("INITIAL_BALANCE", "7500")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Trading.Symbols)
	assert.Equal(t, 7500.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 5*time.Minute, cfg.CycleInterval())
	assert.True(t, cfg.MarketData.Stream)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tok", cfg.Telegram.BotToken)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_SymbolsEnv(t *testing.T) {
	t.Setenv("SYMBOLS", "sol, doge ,")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL", "DOGE"}, cfg.Trading.Symbols)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "trading: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short interval", func(c *Config) { c.Trading.CycleIntervalSec = 5 }},
		{"negative balance", func(c *Config) { c.Trading.InitialBalance = -1 }},
		{"token without chat", func(c *Config) { c.Telegram.BotToken = "x"; c.Telegram.ChatID = "" }},
		{"no symbols", func(c *Config) { c.Trading.Symbols = nil }},
		{"zero leverage", func(c *Config) { c.Trading.MaxLeverage = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
