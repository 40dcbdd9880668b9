// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for data files (always absolute)
	TransactionsFile string // JSON transaction ledger
	DividendsFile    string // JSON dividend ledger
	CacheDBPath      string // Shared sqlite cache database
	LogLevel         string
	DisplayCurrency  string // Currency all report values are converted into
	Benchmarks       []string
	RefreshSchedule  string // cron spec for the cache warming job

	Cache   CacheConfig
	Returns ReturnsConfig
}

// CacheConfig holds price cache tuning knobs
type CacheConfig struct {
	HistoricalTTL  time.Duration // Freshness window for daily bar series
	QuoteTTL       time.Duration // Freshness window for live quotes
	RetentionTTL   time.Duration // How long stale entries are kept for fallback serving
	MaxAttempts    int           // Upstream fetch attempts before degrading
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	BackoffJitter  float64 // Randomization factor, 0..1
	FetchTimeout   time.Duration
	DeadlineBudget time.Duration // Upper bound on a whole get() call including retries
	LockTTL        time.Duration // Cross-process fetch lock expiry
	LockPoll       time.Duration // How often lock losers re-check the store
}

// ReturnsConfig holds return computation policy
type ReturnsConfig struct {
	CarryForwardLimit  int  // Max days a missing price is carried forward
	DividendsAsInflows bool // Treat dividends as external cash flows (reinvested)
}

// BenchmarkInfo describes a selectable benchmark index
type BenchmarkInfo struct {
	Ticker string
	Label  string
}

// Benchmarks maps benchmark keys to their provider tickers.
// Mirrors the set the dashboard historically offered.
var Benchmarks = map[string]BenchmarkInfo{
	"sp500":  {Ticker: "^GSPC", Label: "S&P 500 (US)"},
	"asx200": {Ticker: "^AXJO", Label: "ASX 200 (AUS)"},
	"allord": {Ticker: "^AORD", Label: "ALL ORDINARIES (AUS)"},
}

// ExchangeSuffix maps an exchange code to the provider's symbol suffix.
// US exchanges and Euronext use bare symbols.
var ExchangeSuffix = map[string]string{
	"ASX":         ".AX",
	"BM&FBOVESPA": ".SA",
	"Euronext":    "",
	"FWB":         ".DE",
	"HKEX":        ".HK",
	"JPX":         ".T",
	"JSE":         ".JO",
	"KRX":         ".KS",
	"LSE":         ".L",
	"NSE":         ".NS",
	"SGX":         ".SI",
	"SSE":         ".SS",
	"SZSE":        ".SZ",
	"TSX":         ".TO",
	"TWSE":        ".TW",
	"NASDAQ":      "",
	"NYSE":        "",
}

// ExchangeCurrency maps an exchange code to its trading currency.
var ExchangeCurrency = map[string]string{
	"ASX":         "AUD",
	"BM&FBOVESPA": "BRL",
	"Euronext":    "EUR",
	"FWB":         "EUR",
	"HKEX":        "HKD",
	"JPX":         "JPY",
	"JSE":         "ZAR",
	"KRX":         "KRW",
	"LSE":         "GBP",
	"NSE":         "INR",
	"SGX":         "SGD",
	"SSE":         "CNY",
	"SZSE":        "CNY",
	"TSX":         "CAD",
	"TWSE":        "TWD",
	"NASDAQ":      "USD",
	"NYSE":        "USD",
}

// ProviderSymbol composes the provider-facing symbol for a symbol/exchange pair.
func ProviderSymbol(symbol, exchange string) string {
	return symbol + ExchangeSuffix[exchange]
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MOOSE_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		TransactionsFile: getEnv("TRANSACTIONS_FILE", filepath.Join(absDataDir, "transactions.json")),
		DividendsFile:    getEnv("DIVIDENDS_FILE", filepath.Join(absDataDir, "dividends.json")),
		CacheDBPath:      getEnv("CACHE_DB_PATH", filepath.Join(absDataDir, "cache.db")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DisplayCurrency:  getEnv("DISPLAY_CURRENCY", "AUD"),
		Benchmarks:       []string{getEnv("BENCHMARK", "sp500")},
		RefreshSchedule:  getEnv("REFRESH_SCHEDULE", "@every 4h"),
		Cache: CacheConfig{
			HistoricalTTL:  getEnvAsDuration("CACHE_HISTORICAL_TTL", 4*time.Hour),
			QuoteTTL:       getEnvAsDuration("CACHE_QUOTE_TTL", 60*time.Second),
			RetentionTTL:   getEnvAsDuration("CACHE_RETENTION_TTL", 30*24*time.Hour),
			MaxAttempts:    getEnvAsInt("MAX_RETRIES", 3),
			BackoffBase:    getEnvAsDuration("BACKOFF_BASE", 15*time.Second),
			BackoffCap:     getEnvAsDuration("BACKOFF_CAP", 2*time.Minute),
			BackoffJitter:  getEnvAsFloat("BACKOFF_JITTER", 0.5),
			FetchTimeout:   getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
			DeadlineBudget: getEnvAsDuration("FETCH_DEADLINE_BUDGET", 3*time.Minute),
			LockTTL:        getEnvAsDuration("FETCH_LOCK_TTL", 3*time.Minute),
			LockPoll:       getEnvAsDuration("FETCH_LOCK_POLL", 100*time.Millisecond),
		},
		Returns: ReturnsConfig{
			CarryForwardLimit:  getEnvAsInt("PRICE_CARRY_FORWARD_DAYS", 5),
			DividendsAsInflows: getEnvAsBool("DIVIDENDS_AS_INFLOWS", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Cache.MaxAttempts < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Cache.MaxAttempts)
	}
	if c.Cache.BackoffJitter < 0 || c.Cache.BackoffJitter > 1 {
		return fmt.Errorf("BACKOFF_JITTER must be within [0,1], got %f", c.Cache.BackoffJitter)
	}
	if c.Returns.CarryForwardLimit < 0 {
		return fmt.Errorf("PRICE_CARRY_FORWARD_DAYS must not be negative, got %d", c.Returns.CarryForwardLimit)
	}
	for _, b := range c.Benchmarks {
		if _, ok := Benchmarks[b]; !ok && b != "none" {
			return fmt.Errorf("unknown benchmark %q", b)
		}
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
