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

// coinbaseSymbols maps oracle assets to Coinbase spot pairs. USDC is the
// quote currency on Coinbase and has no spot pair of its own.
var coinbaseSymbols = map[string]string{
	"XLM":  "XLM-USD",
	"USDT": "USDT-USD",
	"BTC":  "BTC-USD",
	"ETH":  "ETH-USD",
}

// Coinbase fetches spot prices from the v2 prices endpoint. Responses carry
// no timestamp, so quotes are stamped on receipt.
type Coinbase struct {
	httpSource
}

func NewCoinbase(cfg config.ProviderConfig, timeout time.Duration) *Coinbase {
	return &Coinbase{httpSource: newHTTPSource(cfg, timeout)}
}

func (p *Coinbase) FetchOne(ctx context.Context, asset string) (*models.RawPrice, error) {
	asset = strings.ToUpper(asset)
	pair, ok := coinbaseSymbols[asset]
	if !ok {
		return nil, &AssetUnsupportedError{Asset: asset, Source: p.Name()}
	}

	url := fmt.Sprintf("%s/v2/prices/%s/spot", p.cfg.BaseURL, pair)
	var data struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, url, nil, &data); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(data.Data.Amount, 64)
	if err != nil {
		return nil, &TransportError{Source: p.Name(), Err: fmt.Errorf("parse amount %q: %w", data.Data.Amount, err)}
	}

	return &models.RawPrice{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Now().Unix(),
		Source:    p.Name(),
	}, nil
}

func (p *Coinbase) FetchMany(ctx context.Context, assets []string) []models.RawPrice {
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

func (p *Coinbase) HealthCheck(ctx context.Context) models.HealthResult {
	start := time.Now()
	_, err := p.FetchOne(ctx, "BTC")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.HealthResult{Healthy: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.HealthResult{Healthy: true, LatencyMs: latency}
}
