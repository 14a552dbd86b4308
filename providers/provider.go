// Package providers implements the per-source price fetchers. Each source
// maps oracle asset symbols to its own identifiers, enforces a leaky-bucket
// request budget, and never retries internally.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/stellarlend/oracle-go/config"
	"github.com/stellarlend/oracle-go/models"
)

// Provider is one source of raw prices.
type Provider interface {
	Name() string
	Priority() int
	Weight() float64
	Enabled() bool

	// FetchOne returns a raw price for a single asset, or an
	// AssetUnsupportedError / TransportError.
	FetchOne(ctx context.Context, asset string) (*models.RawPrice, error)

	// FetchMany returns raw prices for the mapped subset of assets.
	// Unmapped assets are dropped silently; partial failures shrink the
	// result rather than erroring the call.
	FetchMany(ctx context.Context, assets []string) []models.RawPrice

	// HealthCheck probes the source with one known-good asset.
	HealthCheck(ctx context.Context) models.HealthResult
}

// AssetUnsupportedError marks an asset with no symbol mapping for a source.
// It is raised before any network call.
type AssetUnsupportedError struct {
	Asset  string
	Source string
}

func (e *AssetUnsupportedError) Error() string {
	return fmt.Sprintf("asset %s is not supported by %s", e.Asset, e.Source)
}

// TransportError wraps a network or HTTP-level failure from a source.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failure: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// httpSource carries the transport plumbing shared by all HTTP providers.
type httpSource struct {
	cfg     config.ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(cfg config.ProviderConfig, timeout time.Duration) httpSource {
	perRequest := cfg.RateLimit.Window / time.Duration(cfg.RateLimit.MaxRequests)
	return httpSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(perRequest), cfg.RateLimit.MaxRequests),
	}
}

func (s *httpSource) Name() string    { return s.cfg.Name }
func (s *httpSource) Priority() int   { return s.cfg.Priority }
func (s *httpSource) Weight() float64 { return s.cfg.Weight }
func (s *httpSource) Enabled() bool   { return s.cfg.Enabled }

// getJSON waits for rate-limit budget, issues one GET and decodes the JSON
// body. Non-2xx statuses and transport errors come back as TransportError.
func (s *httpSource) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &TransportError{Source: s.cfg.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return &TransportError{Source: s.cfg.Name, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Source: s.cfg.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &TransportError{
			Source: s.cfg.Name,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Source: s.cfg.Name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewFromConfig builds every known provider named in the configuration.
// Unknown names are skipped.
func NewFromConfig(cfgs []config.ProviderConfig, timeout time.Duration) []Provider {
	var out []Provider
	for _, cfg := range cfgs {
		switch cfg.Name {
		case "coingecko":
			out = append(out, NewCoinGecko(cfg, timeout))
		case "binance":
			out = append(out, NewBinance(cfg, timeout))
		case "coinbase":
			out = append(out, NewCoinbase(cfg, timeout))
		}
	}
	return out
}
