package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlend/oracle-go/aggregator"
	"github.com/stellarlend/oracle-go/cache"
	"github.com/stellarlend/oracle-go/models"
	"github.com/stellarlend/oracle-go/providers"
	"github.com/stellarlend/oracle-go/validator"
)

type staticProvider struct {
	name   string
	prices map[string]float64
}

func (p *staticProvider) Name() string    { return p.name }
func (p *staticProvider) Priority() int   { return 1 }
func (p *staticProvider) Weight() float64 { return 0.5 }
func (p *staticProvider) Enabled() bool   { return true }

func (p *staticProvider) FetchOne(ctx context.Context, asset string) (*models.RawPrice, error) {
	price, ok := p.prices[asset]
	if !ok {
		return nil, &providers.AssetUnsupportedError{Asset: asset, Source: p.name}
	}
	return &models.RawPrice{Asset: asset, Price: price, Timestamp: time.Now().Unix(), Source: p.name}, nil
}

func (p *staticProvider) FetchMany(ctx context.Context, assets []string) []models.RawPrice {
	var out []models.RawPrice
	for _, a := range assets {
		if raw, err := p.FetchOne(ctx, a); err == nil {
			out = append(out, *raw)
		}
	}
	return out
}

func (p *staticProvider) HealthCheck(ctx context.Context) models.HealthResult {
	return models.HealthResult{Healthy: true}
}

type recordingSubmitter struct {
	mu      sync.Mutex
	batches [][]*models.AggregatedPrice
	block   chan struct{}
}

func (r *recordingSubmitter) SubmitPrices(ctx context.Context, prices []*models.AggregatedPrice) []models.SubmissionRecord {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.batches = append(r.batches, prices)
	r.mu.Unlock()

	records := make([]models.SubmissionRecord, 0, len(prices))
	for _, p := range prices {
		records = append(records, models.SubmissionRecord{
			Asset: p.Asset, Price: p.Price, Timestamp: p.Timestamp, Success: true, Attempts: 1, TxHash: "hash",
		})
	}
	return records
}

func (r *recordingSubmitter) HealthCheck(ctx context.Context) models.HealthResult {
	return models.HealthResult{Healthy: true}
}

func (r *recordingSubmitter) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func newTestSupervisor(sub PriceSubmitter, interval time.Duration) (*Supervisor, *cache.PriceCache, *validator.Validator) {
	provs := []providers.Provider{&staticProvider{
		name:   "p1",
		prices: map[string]float64{"XLM": 0.15, "BTC": 50_000},
	}}
	v := validator.New(validator.Options{
		MinPrice:            0.000001,
		MaxPrice:            1e12,
		MaxStalenessSeconds: 300,
		MaxDeviationPercent: 10,
	})
	c := cache.New(time.Nanosecond) // effectively no caching between cycles
	agg := aggregator.New(provs, v, c, aggregator.Options{MinSources: 1, UseWeightedMedian: true}, nil)
	sup := New(agg, sub, c, v, provs, Options{
		Network:    "testnet",
		ContractID: "CCONTRACT",
		Interval:   interval,
	}, nil)
	return sup, c, v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartRunsImmediateCycle(t *testing.T) {
	sub := &recordingSubmitter{}
	sup, _, _ := newTestSupervisor(sub, time.Hour)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"xlm", "btc"})
	waitFor(t, func() bool { return sub.batchCount() >= 1 })

	sub.mu.Lock()
	batch := sub.batches[0]
	sub.mu.Unlock()
	require.Len(t, batch, 2)
	for _, p := range batch {
		assert.Equal(t, strings.ToUpper(p.Asset), p.Asset)
	}
}

func TestPeriodicCycles(t *testing.T) {
	sub := &recordingSubmitter{}
	sup, _, _ := newTestSupervisor(sub, 20*time.Millisecond)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"XLM"})
	waitFor(t, func() bool { return sub.batchCount() >= 3 })
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	sub := &recordingSubmitter{}
	sup, _, _ := newTestSupervisor(sub, time.Hour)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"XLM"})
	waitFor(t, func() bool { return sub.batchCount() >= 1 })
	sup.Start(context.Background(), []string{"XLM"})

	assert.Equal(t, 1, sub.batchCount())
	assert.True(t, sup.Status().Running)
}

func TestStopClearsStateAndStopsTicks(t *testing.T) {
	sub := &recordingSubmitter{}
	sup, c, v := newTestSupervisor(sub, 20*time.Millisecond)

	sup.Start(context.Background(), []string{"XLM"})
	waitFor(t, func() bool { return sub.batchCount() >= 1 })
	sup.Stop()

	assert.False(t, sup.Status().Running)
	assert.Empty(t, v.Baselines(), "validator baselines cleared on stop")
	assert.Equal(t, 0, c.Stats().Size, "cache cleared on stop")

	count := sub.batchCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, sub.batchCount(), "no cycles after stop")
}

func TestLateCycleSkipped(t *testing.T) {
	block := make(chan struct{})
	sub := &recordingSubmitter{block: block}
	sup, _, _ := newTestSupervisor(sub, 15*time.Millisecond)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"XLM"})

	// the immediate cycle is stuck in the submitter while several ticks
	// elapse; the ticker keeps at most one of them, the rest are dropped
	time.Sleep(80 * time.Millisecond)
	close(block)

	waitFor(t, func() bool { return sub.batchCount() >= 1 })
	time.Sleep(40 * time.Millisecond)
	assert.LessOrEqual(t, sub.batchCount(), 5, "ticks missed during the stall never pile up")
}

func TestEmptyAggregationKeepsRunning(t *testing.T) {
	sub := &recordingSubmitter{}
	provs := []providers.Provider{&staticProvider{name: "p1", prices: map[string]float64{}}}
	v := validator.New(validator.Options{MinPrice: 0.000001, MaxPrice: 1e12, MaxStalenessSeconds: 300, MaxDeviationPercent: 10})
	c := cache.New(time.Nanosecond)
	agg := aggregator.New(provs, v, c, aggregator.Options{MinSources: 1, UseWeightedMedian: true}, nil)
	sup := New(agg, sub, c, v, provs, Options{Network: "testnet", ContractID: "C", Interval: 20 * time.Millisecond}, nil)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"DOGE"})
	waitFor(t, func() bool { return sup.Status().Aggregator.CyclesRun >= 2 })
	assert.Equal(t, 0, sub.batchCount(), "nothing submitted, service stays up")
	assert.True(t, sup.Status().Running)
}

func TestStatusShape(t *testing.T) {
	sub := &recordingSubmitter{}
	sup, _, _ := newTestSupervisor(sub, time.Hour)
	defer sup.Stop()

	sup.Start(context.Background(), []string{"xlm", "btc", "xlm"})
	waitFor(t, func() bool { return sub.batchCount() >= 1 })

	status := sup.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "testnet", status.Network)
	assert.Equal(t, "CCONTRACT", status.ContractID)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, []string{"BTC", "XLM"}, status.Aggregator.Assets, "assets deduplicated and uppercased")
	assert.GreaterOrEqual(t, status.Aggregator.CyclesRun, uint64(1))
}
