package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlend/oracle-go/config"
	"github.com/stellarlend/oracle-go/models"
)

// coingeckoSymbols maps oracle assets to CoinGecko coin ids.
var coingeckoSymbols = map[string]string{
	"XLM":  "stellar",
	"USDC": "usd-coin",
	"USDT": "tether",
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
}

// CoinGecko fetches spot prices from the CoinGecko simple price API. The
// batch endpoint accepts comma-joined ids, so FetchMany issues one request.
type CoinGecko struct {
	httpSource
}

func NewCoinGecko(cfg config.ProviderConfig, timeout time.Duration) *CoinGecko {
	return &CoinGecko{httpSource: newHTTPSource(cfg, timeout)}
}

type coingeckoQuote struct {
	USD           float64 `json:"usd"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

func (p *CoinGecko) headers() map[string]string {
	if p.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"x-cg-pro-api-key": p.cfg.APIKey}
}

func (p *CoinGecko) FetchOne(ctx context.Context, asset string) (*models.RawPrice, error) {
	asset = strings.ToUpper(asset)
	id, ok := coingeckoSymbols[asset]
	if !ok {
		return nil, &AssetUnsupportedError{Asset: asset, Source: p.Name()}
	}

	quotes, err := p.fetch(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	quote, ok := quotes[id]
	if !ok {
		return nil, &TransportError{Source: p.Name(), Err: fmt.Errorf("no quote for %s in response", id)}
	}
	raw := p.toRawPrice(asset, quote)
	return &raw, nil
}

func (p *CoinGecko) FetchMany(ctx context.Context, assets []string) []models.RawPrice {
	var ids []string
	idToAsset := make(map[string]string)
	for _, asset := range assets {
		asset = strings.ToUpper(asset)
		if id, ok := coingeckoSymbols[asset]; ok {
			ids = append(ids, id)
			idToAsset[id] = asset
		}
	}
	if len(ids) == 0 {
		return nil
	}

	quotes, err := p.fetch(ctx, ids)
	if err != nil {
		return nil
	}

	var out []models.RawPrice
	for _, id := range ids {
		quote, ok := quotes[id]
		if !ok {
			continue
		}
		out = append(out, p.toRawPrice(idToAsset[id], quote))
	}
	return out
}

func (p *CoinGecko) fetch(ctx context.Context, ids []string) (map[string]coingeckoQuote, error) {
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd&include_last_updated_at=true",
		p.cfg.BaseURL, strings.Join(ids, ","))
	quotes := make(map[string]coingeckoQuote)
	if err := p.getJSON(ctx, url, p.headers(), &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// toRawPrice keeps the source's per-coin timestamp when it reports one and
// stamps with the current time otherwise.
func (p *CoinGecko) toRawPrice(asset string, quote coingeckoQuote) models.RawPrice {
	ts := quote.LastUpdatedAt
	if ts <= 0 {
		ts = time.Now().Unix()
	}
	return models.RawPrice{
		Asset:     asset,
		Price:     quote.USD,
		Timestamp: ts,
		Source:    p.Name(),
	}
}

func (p *CoinGecko) HealthCheck(ctx context.Context) models.HealthResult {
	start := time.Now()
	_, err := p.FetchOne(ctx, "BTC")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.HealthResult{Healthy: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.HealthResult{Healthy: true, LatencyMs: latency}
}
