package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the trading bot.
// Signing credentials are optional: without a private key the bot
// runs in monitor-only mode and never submits orders.
type Config struct {
	// Wallet / signing
	PrivateKey     string
	FunderAddress  string // Polymarket proxy wallet, empty = EOA mode
	SignatureType  int    // 0 = EOA, 1 = Magic, 2 = browser proxy
	PolygonChainID int
	PolygonRPCURL  string

	// CLOB API credentials (L2 auth for order endpoints)
	CLOBApiKey     string
	CLOBSecret     string
	CLOBPassphrase string

	// Telegram notifications (optional)
	TelegramBotToken string
	TelegramChatID   string

	// Trading parameters
	TriggerPrice    float64       // side price that initiates a buy
	EntryPrice      float64       // fixed FOK limit price for the buy
	StopLossPrice   float64       // exit when position price falls to this
	TakeProfitPrice float64       // optional early exit target
	MaxPositionSize float64       // USD notional per trade
	PollInterval    time.Duration // fast-path tick interval

	// Risk controls
	MaxConcurrentPositions int
	MaxAttemptsPerMarket   int
	EnableStopLoss         bool
	EnableTakeProfit       bool
}

// Load reads configuration from the environment, with .env support.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional if env vars are set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		PolygonChainID: getEnvInt("POLYGON_CHAIN_ID", 137),
		PolygonRPCURL:  getEnvString("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		SignatureType:  getEnvInt("SIGNATURE_TYPE", 0),

		TriggerPrice:    getEnvFloat("TRIGGER_PRICE", 0.96),
		EntryPrice:      getEnvFloat("ENTRY_PRICE", 0.97),
		StopLossPrice:   getEnvFloat("STOP_LOSS_PRICE", 0.80),
		TakeProfitPrice: getEnvFloat("TAKE_PROFIT_PRICE", 0.99),
		MaxPositionSize: getEnvFloat("MAX_POSITION_SIZE", 5),
		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_MS", 100)) * time.Millisecond,

		MaxConcurrentPositions: getEnvInt("MAX_CONCURRENT_POSITIONS", 2),
		MaxAttemptsPerMarket:   getEnvInt("MAX_ATTEMPTS_PER_MARKET", 3),
		EnableStopLoss:         getEnvBool("ENABLE_STOP_LOSS", true),
		EnableTakeProfit:       getEnvBool("ENABLE_TAKE_PROFIT", false),
	}

	cfg.PrivateKey = os.Getenv("PRIVATE_KEY")
	cfg.FunderAddress = os.Getenv("FUNDER_ADDRESS")

	cfg.CLOBApiKey = os.Getenv("CLOB_API_KEY")
	cfg.CLOBSecret = os.Getenv("CLOB_SECRET")
	cfg.CLOBPassphrase = os.Getenv("CLOB_PASSPHRASE")

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	return cfg, nil
}

// LoadWithPrivateKey loads config requiring the private key.
// Used by commands that need wallet access but not CLOB API credentials.
func LoadWithPrivateKey() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKey == "" {
		return nil, errors.New("missing required config: PRIVATE_KEY")
	}
	return cfg, nil
}

// CanTrade reports whether signing credentials are present.
func (c *Config) CanTrade() bool {
	return c.PrivateKey != ""
}

// HasTelegram reports whether Telegram notifications are configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// UseFunder reports whether orders fund from a Polymarket proxy wallet.
func (c *Config) UseFunder() bool {
	return c.FunderAddress != ""
}

// Validate performs runtime validation of config values.
func (c *Config) Validate() error {
	if c.TriggerPrice <= 0 || c.TriggerPrice >= 1 {
		return errors.New("TRIGGER_PRICE must be between 0 and 1")
	}
	if c.EntryPrice <= 0 || c.EntryPrice >= 1 {
		return errors.New("ENTRY_PRICE must be between 0 and 1")
	}
	if c.EntryPrice < c.TriggerPrice {
		return errors.New("ENTRY_PRICE must not be below TRIGGER_PRICE")
	}
	if c.StopLossPrice < 0 || c.StopLossPrice >= 1 {
		return errors.New("STOP_LOSS_PRICE must be between 0 and 1")
	}
	if c.MaxPositionSize <= 0 {
		return errors.New("MAX_POSITION_SIZE must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL_MS must be positive")
	}
	if c.MaxConcurrentPositions <= 0 {
		return errors.New("MAX_CONCURRENT_POSITIONS must be at least 1")
	}
	if c.MaxAttemptsPerMarket <= 0 {
		return errors.New("MAX_ATTEMPTS_PER_MARKET must be at least 1")
	}
	if c.SignatureType < 0 || c.SignatureType > 2 {
		return errors.New("SIGNATURE_TYPE must be 0, 1 or 2")
	}
	return nil
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvString(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
