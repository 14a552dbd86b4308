// Package aggregator combines validated prices from multiple providers into
// one price per asset, with a cache probe up front and a weighted median
// over the survivors.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	slog "github.com/stellar/go/support/log"

	"github.com/stellarlend/oracle-go/cache"
	"github.com/stellarlend/oracle-go/metrics"
	"github.com/stellarlend/oracle-go/models"
	"github.com/stellarlend/oracle-go/providers"
	"github.com/stellarlend/oracle-go/validator"
)

// defaultWeight applies when a survivor's source is not among the
// configured providers.
const defaultWeight = 0.1

// Options configures aggregation policy.
type Options struct {
	MinSources        int
	UseWeightedMedian bool
}

// Aggregator fans out to providers in priority order and publishes accepted
// prices to the cache.
type Aggregator struct {
	providers []providers.Provider
	weights   map[string]float64
	validator *validator.Validator
	cache     *cache.PriceCache
	opts      Options
	log       *slog.Entry

	now func() time.Time
}

// New builds an aggregator over the enabled providers, sorted by ascending
// priority.
func New(provs []providers.Provider, v *validator.Validator, c *cache.PriceCache, opts Options, logger *slog.Entry) *Aggregator {
	if logger == nil {
		logger = slog.DefaultLogger
	}
	if opts.MinSources < 1 {
		opts.MinSources = 1
	}

	enabled := make([]providers.Provider, 0, len(provs))
	weights := make(map[string]float64, len(provs))
	for _, p := range provs {
		weights[p.Name()] = p.Weight()
		if p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority() < enabled[j].Priority()
	})

	return &Aggregator{
		providers: enabled,
		weights:   weights,
		validator: v,
		cache:     c,
		opts:      opts,
		log:       logger,
		now:       time.Now,
	}
}

// GetPrice produces one aggregated price for an asset, or nil when fewer
// than MinSources survive and the cache has nothing current.
func (a *Aggregator) GetPrice(ctx context.Context, asset string) *models.AggregatedPrice {
	asset = strings.ToUpper(asset)

	if cached, ok := a.cache.Get(asset); ok {
		metrics.CacheHits.Inc()
		return &models.AggregatedPrice{
			Asset:      asset,
			Price:      cached,
			Sources:    []models.ValidatedPrice{},
			Timestamp:  a.now().Unix(),
			Confidence: 100,
		}
	}
	metrics.CacheMisses.Inc()

	var survivors []models.ValidatedPrice
	fetched := 0
	for _, p := range a.providers {
		raw, err := p.FetchOne(ctx, asset)
		if err != nil {
			a.log.WithField("asset", asset).
				WithField("source", p.Name()).
				WithError(err).
				Debug("provider fetch failed")
			continue
		}
		fetched++

		result := a.validator.Validate(*raw)
		if !result.OK {
			for _, verr := range result.Errors {
				a.log.WithField("asset", asset).
					WithField("source", p.Name()).
					WithField("error", verr.Error()).
					Debug("price rejected")
			}
			continue
		}
		survivors = append(survivors, *result.Validated)
	}

	if len(survivors) < a.opts.MinSources {
		if fetched == 0 && len(a.providers) > 0 {
			a.log.WithField("asset", asset).Warn("all providers failed")
		} else {
			a.log.WithField("asset", asset).
				WithField("survivors", len(survivors)).
				WithField("min_sources", a.opts.MinSources).
				Warn("insufficient valid sources")
		}
		metrics.UpdateFailures.Inc()
		return nil
	}

	price := a.combine(survivors)
	agg := &models.AggregatedPrice{
		Asset:      asset,
		Price:      price,
		Sources:    survivors,
		Timestamp:  a.now().Unix(),
		Confidence: a.confidence(survivors),
	}

	a.cache.Set(asset, agg.Price, 0)
	metrics.PriceUpdates.Inc()
	return agg
}

// GetPrices aggregates a set of assets concurrently. One asset failing does
// not cancel its siblings; only non-nil results appear in the map.
func (a *Aggregator) GetPrices(ctx context.Context, assets []string) map[string]*models.AggregatedPrice {
	var mu sync.Mutex
	var wg sync.WaitGroup
	out := make(map[string]*models.AggregatedPrice)

	for _, asset := range assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			if agg := a.GetPrice(ctx, asset); agg != nil {
				mu.Lock()
				out[agg.Asset] = agg
				mu.Unlock()
			}
		}(asset)
	}
	wg.Wait()
	return out
}

// combine picks the aggregated scaled price from the survivors: the single
// survivor itself, the weighted median, or the simple median when weighted
// aggregation is switched off.
func (a *Aggregator) combine(survivors []models.ValidatedPrice) int64 {
	if len(survivors) == 1 {
		return survivors[0].Price
	}

	sorted := make([]models.ValidatedPrice, len(survivors))
	copy(sorted, survivors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})

	if !a.opts.UseWeightedMedian {
		return simpleMedian(sorted)
	}
	return a.weightedMedian(sorted)
}

// weightedMedian scans the price-sorted survivors accumulating source
// weights and returns the first whose cumulative weight reaches half of the
// total. Zero total weight falls back to the simple median.
func (a *Aggregator) weightedMedian(sorted []models.ValidatedPrice) int64 {
	total := 0.0
	for _, s := range sorted {
		total += a.weightFor(s.Source)
	}
	if total <= 0 {
		return simpleMedian(sorted)
	}

	half := total / 2
	cumulative := 0.0
	for _, s := range sorted {
		cumulative += a.weightFor(s.Source)
		if cumulative >= half {
			return s.Price
		}
	}
	return sorted[len(sorted)-1].Price
}

func simpleMedian(sorted []models.ValidatedPrice) int64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2].Price
	}
	return (sorted[n/2-1].Price + sorted[n/2].Price) / 2
}

// confidence is the weight-averaged per-source confidence, rounded.
func (a *Aggregator) confidence(survivors []models.ValidatedPrice) int {
	totalWeight := 0.0
	weighted := 0.0
	for _, s := range survivors {
		w := a.weightFor(s.Source)
		totalWeight += w
		weighted += w * float64(s.Confidence)
	}
	if totalWeight <= 0 {
		sum := 0
		for _, s := range survivors {
			sum += s.Confidence
		}
		return sum / len(survivors)
	}
	return int(weighted/totalWeight + 0.5)
}

func (a *Aggregator) weightFor(source string) float64 {
	if w, ok := a.weights[source]; ok {
		return w
	}
	return defaultWeight
}

// Stats reports the aggregator's share of the status surface.
func (a *Aggregator) Stats() models.AggregatorStats {
	return models.AggregatorStats{
		MinSources: a.opts.MinSources,
		Cache:      a.cache.Stats(),
	}
}

// ProviderStatuses lists every configured provider, enabled or not.
func ProviderStatuses(provs []providers.Provider) []models.ProviderStatus {
	out := make([]models.ProviderStatus, 0, len(provs))
	for _, p := range provs {
		out = append(out, models.ProviderStatus{
			Name:     p.Name(),
			Enabled:  p.Enabled(),
			Priority: p.Priority(),
			Weight:   p.Weight(),
		})
	}
	return out
}
