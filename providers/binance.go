package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stellarlend/oracle-go/config"
	"github.com/stellarlend/oracle-go/models"
)

// binanceSymbols maps oracle assets to Binance tickers. USDT has no USD
// spot pair on Binance, so it stays unmapped.
var binanceSymbols = map[string]string{
	"XLM":  "XLMUSDT",
	"USDC": "USDCUSDT",
	"BTC":  "BTCUSDT",
	"ETH":  "ETHUSDT",
}

// Binance fetches last-trade prices from the public ticker endpoint. The
// ticker carries no timestamp, so quotes are stamped on receipt.
type Binance struct {
	httpSource
}

func NewBinance(cfg config.ProviderConfig, timeout time.Duration) *Binance {
	return &Binance{httpSource: newHTTPSource(cfg, timeout)}
}

func (p *Binance) headers() map[string]string {
	if p.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"X-MBX-APIKEY": p.cfg.APIKey}
}

func (p *Binance) FetchOne(ctx context.Context, asset string) (*models.RawPrice, error) {
	asset = strings.ToUpper(asset)
	ticker, ok := binanceSymbols[asset]
	if !ok {
		return nil, &AssetUnsupportedError{Asset: asset, Source: p.Name()}
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", p.cfg.BaseURL, ticker)
	var data struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := p.getJSON(ctx, url, p.headers(), &data); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(data.Price, 64)
	if err != nil {
		return nil, &TransportError{Source: p.Name(), Err: fmt.Errorf("parse price %q: %w", data.Price, err)}
	}

	return &models.RawPrice{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Now().Unix(),
		Source:    p.Name(),
	}, nil
}

func (p *Binance) FetchMany(ctx context.Context, assets []string) []models.RawPrice {
	var out []models.RawPrice
	for _, asset := range assets {
		raw, err := p.FetchOne(ctx, asset)
		if err != nil {
			continue
		}
		out = append(out, *raw)
	}
	return out
}

func (p *Binance) HealthCheck(ctx context.Context) models.HealthResult {
	start := time.Now()
	_, err := p.FetchOne(ctx, "BTC")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.HealthResult{Healthy: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.HealthResult{Healthy: true, LatencyMs: latency}
}
