package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"

	"github.com/stellarlend/oracle-go/utils"
)

var _ = godotenv.Load("dev.env")

// Network names accepted in NETWORK.
const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

// Network-appropriate endpoint defaults.
const (
	testnetRPCURL     = "https://soroban-testnet.stellar.org"
	testnetHorizonURL = "https://horizon-testnet.stellar.org"
	mainnetRPCURL     = "https://soroban-rpc.mainnet.stellar.gateway.fm"
	mainnetHorizonURL = "https://horizon.stellar.org"
)

// RateLimitConfig is one provider's request budget: MaxRequests per Window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// ProviderConfig describes one price source. Lower Priority is tried first.
type ProviderConfig struct {
	Name      string
	Enabled   bool
	Priority  int
	Weight    float64
	BaseURL   string
	APIKey    string
	RateLimit RateLimitConfig
}

// Config is the full set of operational parameters for the oracle service.
type Config struct {
	Network        string
	RPCURL         string
	HorizonURL     string
	ContractID     string
	AdminSecretKey string

	UpdateInterval           time.Duration
	MaxPriceDeviationPercent float64
	PriceStaleThresholdSecs  int64
	CacheTTL                 time.Duration
	LogLevel                 string

	MinSources        int
	UseWeightedMedian bool
	MinPrice          float64
	MaxPrice          float64

	SubmitMaxRetries int
	SubmitRetryDelay time.Duration
	SubmitPacing     time.Duration
	TxTimeoutSecs    int64
	PollInterval     time.Duration
	HTTPTimeout      time.Duration

	Assets     []string
	StatusAddr string

	Providers []ProviderConfig
}

// Load reads the environment into a validated Config. A value that fails
// validation is terminal: the caller is expected to abort startup. A numeric
// or boolean variable that does not parse is not an error; its default is
// used instead.
func Load() (*Config, error) {
	cfg := &Config{
		Network:        strings.ToLower(getEnv("NETWORK", NetworkTestnet)),
		RPCURL:         os.Getenv("RPC_URL"),
		HorizonURL:     os.Getenv("HORIZON_URL"),
		ContractID:     os.Getenv("CONTRACT_ID"),
		AdminSecretKey: os.Getenv("ADMIN_SECRET_KEY"),

		UpdateInterval:           getEnvDurationMs("UPDATE_INTERVAL_MS", 60_000),
		MaxPriceDeviationPercent: getEnvFloat("MAX_PRICE_DEVIATION_PERCENT", 10),
		PriceStaleThresholdSecs:  getEnvInt64("PRICE_STALE_THRESHOLD_SECONDS", 300),
		CacheTTL:                 time.Duration(getEnvInt64("CACHE_TTL_SECONDS", 30)) * time.Second,
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),

		MinSources:        int(getEnvInt64("MIN_SOURCES", 1)),
		UseWeightedMedian: getEnvBool("USE_WEIGHTED_MEDIAN", true),
		MinPrice:          getEnvFloat("MIN_PRICE", 0.000001),
		MaxPrice:          getEnvFloat("MAX_PRICE", 1e12),

		SubmitMaxRetries: int(getEnvInt64("SUBMIT_MAX_RETRIES", 3)),
		SubmitRetryDelay: getEnvDurationMs("SUBMIT_RETRY_DELAY_MS", 1_000),
		SubmitPacing:     getEnvDurationMs("SUBMIT_PACING_MS", 100),
		TxTimeoutSecs:    getEnvInt64("TX_TIMEOUT_SECONDS", 30),
		PollInterval:     getEnvDurationMs("TX_POLL_INTERVAL_MS", 1_000),
		HTTPTimeout:      time.Duration(getEnvInt64("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,

		StatusAddr: getEnv("STATUS_ADDR", ":8080"),
	}

	for _, asset := range strings.Split(getEnv("ORACLE_ASSETS", "XLM,USDC,USDT,BTC,ETH"), ",") {
		if asset == "" {
			continue
		}
		cfg.Assets = append(cfg.Assets, strings.ToUpper(asset))
	}

	switch cfg.Network {
	case NetworkTestnet:
		if cfg.RPCURL == "" {
			cfg.RPCURL = testnetRPCURL
		}
		if cfg.HorizonURL == "" {
			cfg.HorizonURL = testnetHorizonURL
		}
	case NetworkMainnet:
		if cfg.RPCURL == "" {
			cfg.RPCURL = mainnetRPCURL
		}
		if cfg.HorizonURL == "" {
			cfg.HorizonURL = mainnetHorizonURL
		}
	default:
		return nil, fmt.Errorf("invalid NETWORK %q: options (testnet, mainnet)", cfg.Network)
	}

	cfg.Providers = defaultProviders()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		providerFromEnv("coingecko", ProviderConfig{
			Name:      "coingecko",
			Enabled:   true,
			Priority:  1,
			Weight:    0.5,
			BaseURL:   "https://api.coingecko.com",
			RateLimit: RateLimitConfig{MaxRequests: 30, Window: time.Minute},
		}),
		providerFromEnv("binance", ProviderConfig{
			Name:      "binance",
			Enabled:   true,
			Priority:  2,
			Weight:    0.3,
			BaseURL:   "https://api.binance.com",
			RateLimit: RateLimitConfig{MaxRequests: 60, Window: time.Minute},
		}),
		providerFromEnv("coinbase", ProviderConfig{
			Name:      "coinbase",
			Enabled:   true,
			Priority:  3,
			Weight:    0.2,
			BaseURL:   "https://api.coinbase.com",
			RateLimit: RateLimitConfig{MaxRequests: 60, Window: time.Minute},
		}),
	}
}

func providerFromEnv(name string, def ProviderConfig) ProviderConfig {
	prefix := strings.ToUpper(name)
	def.Enabled = getEnvBool(prefix+"_ENABLED", def.Enabled)
	def.Priority = int(getEnvInt64(prefix+"_PRIORITY", int64(def.Priority)))
	def.Weight = getEnvFloat(prefix+"_WEIGHT", def.Weight)
	def.BaseURL = getEnv(prefix+"_BASE_URL", def.BaseURL)
	def.APIKey = os.Getenv(prefix + "_API_KEY")
	def.RateLimit.MaxRequests = int(getEnvInt64(prefix+"_RATE_LIMIT_MAX", int64(def.RateLimit.MaxRequests)))
	def.RateLimit.Window = getEnvDurationMs(prefix+"_RATE_LIMIT_WINDOW_MS", int64(def.RateLimit.Window/time.Millisecond))
	return def
}

func (c *Config) validate() error {
	if c.ContractID == "" {
		return fmt.Errorf("CONTRACT_ID is required")
	}
	if _, err := strkey.Decode(strkey.VersionByteContract, c.ContractID); err != nil {
		return fmt.Errorf("CONTRACT_ID is not a valid contract address: %w", err)
	}
	if c.AdminSecretKey == "" {
		return fmt.Errorf("ADMIN_SECRET_KEY is required")
	}
	if _, err := keypair.ParseFull(c.AdminSecretKey); err != nil {
		return fmt.Errorf("ADMIN_SECRET_KEY is not a valid secret seed: %w", err)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_MS must be positive")
	}
	if c.MaxPriceDeviationPercent <= 0 {
		return fmt.Errorf("MAX_PRICE_DEVIATION_PERCENT must be positive")
	}
	if c.PriceStaleThresholdSecs <= 0 {
		return fmt.Errorf("PRICE_STALE_THRESHOLD_SECONDS must be positive")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative")
	}
	if c.MinSources < 1 {
		return fmt.Errorf("MIN_SOURCES must be at least 1")
	}
	if c.MinPrice < 0 {
		return fmt.Errorf("MIN_PRICE must not be negative")
	}
	if c.MaxPrice <= c.MinPrice {
		return fmt.Errorf("MAX_PRICE must exceed MIN_PRICE")
	}
	if c.MaxPrice > utils.MaxScalablePrice {
		return fmt.Errorf("MAX_PRICE %v would overflow the scaled price representation", c.MaxPrice)
	}
	if c.SubmitMaxRetries < 0 {
		return fmt.Errorf("SUBMIT_MAX_RETRIES must not be negative")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("ORACLE_ASSETS must name at least one asset")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q: options (debug, info, warn, error)", c.LogLevel)
	}
	for _, p := range c.Providers {
		if p.Weight < 0 {
			return fmt.Errorf("%s weight must not be negative", p.Name)
		}
		if p.RateLimit.MaxRequests < 1 || p.RateLimit.Window <= 0 {
			return fmt.Errorf("%s rate limit must allow at least one request per window", p.Name)
		}
	}
	return nil
}

// IsMainnet reports whether the service targets the public network.
func (c *Config) IsMainnet() bool {
	return c.Network == NetworkMainnet
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDurationMs(key string, defMs int64) time.Duration {
	return time.Duration(getEnvInt64(key, defMs)) * time.Millisecond
}
