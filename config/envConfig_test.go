package config

import (
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractID = "CAFJZQWSED6YAWZU3GWRTOCNPPCGBN32L7QV43XX5LZLFTK6JLN34DLN"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTRACT_ID", testContractID)
	t.Setenv("ADMIN_SECRET_KEY", keypair.MustRandom().Seed())
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, NetworkTestnet, cfg.Network)
	assert.Equal(t, testnetRPCURL, cfg.RPCURL)
	assert.Equal(t, testnetHorizonURL, cfg.HorizonURL)
	assert.Equal(t, time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 10.0, cfg.MaxPriceDeviationPercent)
	assert.Equal(t, int64(300), cfg.PriceStaleThresholdSecs)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.MinSources)
	assert.True(t, cfg.UseWeightedMedian)
	assert.Equal(t, []string{"XLM", "USDC", "USDT", "BTC", "ETH"}, cfg.Assets)
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "coingecko", cfg.Providers[0].Name)
	assert.Equal(t, 1, cfg.Providers[0].Priority)
	assert.Equal(t, 0.5, cfg.Providers[0].Weight)
}

func TestLoadMainnetDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NETWORK", "mainnet")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsMainnet())
	assert.Equal(t, mainnetRPCURL, cfg.RPCURL)
	assert.Equal(t, mainnetHorizonURL, cfg.HorizonURL)
}

func TestLoadRequiresContractID(t *testing.T) {
	t.Setenv("CONTRACT_ID", "")
	t.Setenv("ADMIN_SECRET_KEY", keypair.MustRandom().Seed())

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTRACT_ID")
}

func TestLoadRejectsBadContractID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONTRACT_ID", "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF")

	_, err := Load()
	assert.Error(t, err, "account addresses are not contract ids")
}

func TestLoadRejectsBadSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_SECRET_KEY", "SINVALID")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_SECRET_KEY")
}

func TestLoadRejectsBadNetwork(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NETWORK", "futurenet")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOverflowingMaxPrice(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_PRICE", "1e30")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_PRICE")
}

func TestLoadAssetListOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_ASSETS", "xlm,btc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"XLM", "BTC"}, cfg.Assets)
}

func TestProviderOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BINANCE_ENABLED", "false")
	t.Setenv("COINGECKO_WEIGHT", "0.7")
	t.Setenv("COINGECKO_API_KEY", "cg-key")
	t.Setenv("COINGECKO_RATE_LIMIT_MAX", "10")

	cfg, err := Load()
	require.NoError(t, err)

	byName := map[string]ProviderConfig{}
	for _, p := range cfg.Providers {
		byName[p.Name] = p
	}
	assert.False(t, byName["binance"].Enabled)
	assert.Equal(t, 0.7, byName["coingecko"].Weight)
	assert.Equal(t, "cg-key", byName["coingecko"].APIKey)
	assert.Equal(t, 10, byName["coingecko"].RateLimit.MaxRequests)
}

func TestLoadRejectsZeroMinSources(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_SOURCES", "0")

	_, err := Load()
	assert.Error(t, err)
}
