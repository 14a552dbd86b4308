// Package supervisor drives the oracle pipeline on a fixed period:
// aggregate the configured assets, submit the results, publish status.
package supervisor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	slog "github.com/stellar/go/support/log"

	"github.com/stellarlend/oracle-go/aggregator"
	"github.com/stellarlend/oracle-go/cache"
	"github.com/stellarlend/oracle-go/metrics"
	"github.com/stellarlend/oracle-go/models"
	"github.com/stellarlend/oracle-go/providers"
	"github.com/stellarlend/oracle-go/validator"
)

// PriceSubmitter is what the supervisor needs from the on-chain side.
type PriceSubmitter interface {
	SubmitPrices(ctx context.Context, prices []*models.AggregatedPrice) []models.SubmissionRecord
	HealthCheck(ctx context.Context) models.HealthResult
}

// Supervisor owns the pipeline components and their lifecycle. A cycle that
// is still running when the next tick fires is not re-entered: at most one
// late tick is kept and runs after it, further late ticks are skipped.
type Supervisor struct {
	agg       *aggregator.Aggregator
	sub       PriceSubmitter
	cache     *cache.PriceCache
	validator *validator.Validator
	provs     []providers.Provider

	network    string
	contractID string
	interval   time.Duration
	log        *slog.Entry

	mu           sync.Mutex
	running      bool
	cycleBusy    bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	assets       []string
	cyclesRun    uint64
	cyclesFailed uint64
	lastCycleAt  int64
}

// Options carries the identity fields surfaced in status.
type Options struct {
	Network    string
	ContractID string
	Interval   time.Duration
}

// New wires the pipeline together.
func New(agg *aggregator.Aggregator, sub PriceSubmitter, c *cache.PriceCache, v *validator.Validator, provs []providers.Provider, opts Options, logger *slog.Entry) *Supervisor {
	if logger == nil {
		logger = slog.DefaultLogger
	}
	return &Supervisor{
		agg:        agg,
		sub:        sub,
		cache:      c,
		validator:  v,
		provs:      provs,
		network:    opts.Network,
		contractID: opts.ContractID,
		interval:   opts.Interval,
		log:        logger,
	}
}

// Start runs one cycle immediately, then schedules cycles on the configured
// interval. Starting an already-running supervisor logs and returns.
func (s *Supervisor) Start(ctx context.Context, assets []string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("supervisor already running")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.assets = canonicalAssets(assets)
	s.mu.Unlock()

	s.log.WithField("assets", len(assets)).
		WithField("interval", s.interval.String()).
		Info("oracle supervisor started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(runCtx)

		// The ticker holds at most one pending tick: ticks that fire while a
		// cycle is still running collapse into a single follow-up cycle, and
		// the rest are skipped rather than queued.
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runCycle(runCtx)
			}
		}
	}()
}

// Stop cancels the timer. In-flight submissions run to their own deadlines;
// validator baselines and cache contents are cleared once the loop exits.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.validator.ClearBaseline("")
	s.cache.Clear()
	s.log.Info("oracle supervisor stopped")
}

// runCycle executes one aggregate-and-submit pass. Panics and empty results
// are contained: the next tick still runs.
func (s *Supervisor) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.cycleBusy {
		s.mu.Unlock()
		s.log.Warn("previous cycle still running, skipping tick")
		return
	}
	s.cycleBusy = true
	assets := s.assets
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("cycle aborted")
			s.mu.Lock()
			s.cyclesFailed++
			s.mu.Unlock()
		}
		s.mu.Lock()
		s.cycleBusy = false
		s.mu.Unlock()
	}()

	start := time.Now()
	prices := s.agg.GetPrices(ctx, assets)
	if len(prices) == 0 {
		s.log.Warn("no prices aggregated this cycle")
		s.finishCycle(start, false)
		return
	}

	batch := make([]*models.AggregatedPrice, 0, len(prices))
	for _, asset := range assets {
		if p, ok := prices[asset]; ok {
			batch = append(batch, p)
		}
	}

	// Submissions are detached from the run context so that Stop does not
	// abort them; they finish on their own deadlines.
	records := s.sub.SubmitPrices(context.WithoutCancel(ctx), batch)
	succeeded, failed := 0, 0
	for _, rec := range records {
		if rec.Success {
			succeeded++
		} else {
			failed++
			s.log.WithField("asset", rec.Asset).
				WithField("attempt", rec.Attempts).
				WithField("error", rec.Error).
				Error("price submission exhausted retries")
		}
	}

	s.log.WithField("aggregated", len(batch)).
		WithField("submitted", succeeded).
		WithField("failed", failed).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("cycle complete")
	s.finishCycle(start, failed == 0)
}

func (s *Supervisor) finishCycle(start time.Time, ok bool) {
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	s.mu.Lock()
	s.cyclesRun++
	if !ok {
		s.cyclesFailed++
	}
	s.lastCycleAt = start.Unix()
	s.mu.Unlock()
}

// Status reports the read-only service state for the operator surface.
func (s *Supervisor) Status() models.ServiceStatus {
	s.mu.Lock()
	running := s.running
	assets := s.assets
	cyclesRun := s.cyclesRun
	cyclesFailed := s.cyclesFailed
	lastCycleAt := s.lastCycleAt
	s.mu.Unlock()

	stats := s.agg.Stats()
	stats.Assets = assets
	stats.CyclesRun = cyclesRun
	stats.CyclesFailed = cyclesFailed
	stats.LastCycleAt = lastCycleAt

	return models.ServiceStatus{
		Running:    running,
		Network:    s.network,
		ContractID: s.contractID,
		Providers:  aggregator.ProviderStatuses(s.provs),
		Aggregator: stats,
	}
}

// HealthCheck reports the submitter probe; providers are summarized in
// Status.
func (s *Supervisor) HealthCheck(ctx context.Context) models.HealthResult {
	return s.sub.HealthCheck(ctx)
}

func canonicalAssets(assets []string) []string {
	seen := make(map[string]bool, len(assets))
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		upper := strings.ToUpper(a)
		if upper == "" || seen[upper] {
			continue
		}
		seen[upper] = true
		out = append(out, upper)
	}
	sort.Strings(out)
	return out
}
