// Package validator turns raw provider prices into validated scaled prices,
// keeping a per-asset baseline of the last accepted price for deviation
// checks.
package validator

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/stellarlend/oracle-go/models"
	"github.com/stellarlend/oracle-go/utils"
)

// Confidence penalties: up to 20 points for age, up to 30 for deviation
// from the baseline, plus a fixed per-source bias.
const (
	agePenaltyMax       = 20.0
	deviationPenaltyMax = 30.0
)

var sourceBias = map[string]int{
	"coingecko": 0,
	"binance":   5,
	"coinbase":  5,
}

// Options configures the validation policy.
type Options struct {
	MinPrice            float64
	MaxPrice            float64
	MaxStalenessSeconds int64
	MaxDeviationPercent float64
}

// Result is the outcome of validating one raw price. Errors holds every
// failed check; Validated is set only when Errors is empty.
type Result struct {
	OK        bool
	Validated *models.ValidatedPrice
	Errors    []*models.ValidationError
}

// Validator is safe for concurrent use; the baseline map is the only state.
type Validator struct {
	opts Options

	mu        sync.Mutex
	baselines map[string]float64

	now func() time.Time
}

// New builds a validator with empty baselines.
func New(opts Options) *Validator {
	return &Validator{
		opts:      opts,
		baselines: make(map[string]float64),
		now:       time.Now,
	}
}

// Validate checks one raw price. All checks run; errors accumulate rather
// than short-circuiting. The baseline moves only on full success.
func (v *Validator) Validate(raw models.RawPrice) Result {
	asset := strings.ToUpper(raw.Asset)
	var errs []*models.ValidationError

	if asset == "" {
		errs = append(errs, models.NewValidationError(models.InvalidAsset, "asset symbol is empty"))
	}

	switch {
	case raw.Price <= 0:
		errs = append(errs, &models.ValidationError{
			Code:    models.PriceZero,
			Message: fmt.Sprintf("price %v is not positive", raw.Price),
			Value:   raw.Price,
		})
	case raw.Price < v.opts.MinPrice:
		errs = append(errs, &models.ValidationError{
			Code:    models.PriceZero,
			Message: fmt.Sprintf("price %v is below the floor %v", raw.Price, v.opts.MinPrice),
			Value:   raw.Price,
			Limit:   v.opts.MinPrice,
		})
	}
	if raw.Price > v.opts.MaxPrice {
		errs = append(errs, &models.ValidationError{
			Code:    models.PriceDeviationTooHigh,
			Message: fmt.Sprintf("price %v exceeds the ceiling %v", raw.Price, v.opts.MaxPrice),
			Value:   raw.Price,
			Limit:   v.opts.MaxPrice,
		})
	}

	now := v.now().Unix()
	age := now - raw.Timestamp
	if age > v.opts.MaxStalenessSeconds {
		errs = append(errs, &models.ValidationError{
			Code:    models.PriceStale,
			Message: fmt.Sprintf("price is %ds old, max age %ds", age, v.opts.MaxStalenessSeconds),
			Value:   float64(age),
			Limit:   float64(v.opts.MaxStalenessSeconds),
		})
	}

	v.mu.Lock()
	baseline, hasBaseline := v.baselines[asset]
	v.mu.Unlock()

	deviation := 0.0
	if hasBaseline && baseline > 0 {
		deviation = math.Abs(raw.Price-baseline) / baseline * 100
		if deviation > v.opts.MaxDeviationPercent {
			errs = append(errs, &models.ValidationError{
				Code:    models.PriceDeviationTooHigh,
				Message: fmt.Sprintf("price %v deviates %.2f%% from baseline %v, max %v%%", raw.Price, deviation, baseline, v.opts.MaxDeviationPercent),
				Value:   deviation,
				Limit:   v.opts.MaxDeviationPercent,
			})
		}
	}

	if len(errs) > 0 {
		return Result{OK: false, Errors: errs}
	}

	scaled, err := utils.ScalePrice(raw.Price)
	if err != nil {
		return Result{OK: false, Errors: []*models.ValidationError{{
			Code:    models.PriceDeviationTooHigh,
			Message: err.Error(),
			Value:   raw.Price,
		}}}
	}

	confidence := v.confidence(raw.Source, age, deviation, hasBaseline)

	v.mu.Lock()
	v.baselines[asset] = raw.Price
	v.mu.Unlock()

	return Result{
		OK: true,
		Validated: &models.ValidatedPrice{
			Asset:      asset,
			Price:      scaled,
			Timestamp:  raw.Timestamp,
			Source:     raw.Source,
			Confidence: confidence,
		},
	}
}

// ValidateMany applies Validate in input order without cross-row coupling.
func (v *Validator) ValidateMany(raws []models.RawPrice) []Result {
	results := make([]Result, 0, len(raws))
	for _, raw := range raws {
		results = append(results, v.Validate(raw))
	}
	return results
}

func (v *Validator) confidence(source string, ageSecs int64, deviation float64, hasBaseline bool) int {
	score := 100.0
	if v.opts.MaxStalenessSeconds > 0 && ageSecs > 0 {
		score -= math.Min(agePenaltyMax, agePenaltyMax*float64(ageSecs)/float64(v.opts.MaxStalenessSeconds))
	}
	if hasBaseline && v.opts.MaxDeviationPercent > 0 {
		score -= math.Min(deviationPenaltyMax, deviationPenaltyMax*deviation/v.opts.MaxDeviationPercent)
	}
	score -= float64(sourceBias[source])

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// UpdateBaseline overrides the last-accepted real price for an asset.
func (v *Validator) UpdateBaseline(asset string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.baselines[strings.ToUpper(asset)] = price
}

// ClearBaseline drops one asset's baseline, or all baselines when asset is
// empty.
func (v *Validator) ClearBaseline(asset string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if asset == "" {
		v.baselines = make(map[string]float64)
		return
	}
	delete(v.baselines, strings.ToUpper(asset))
}

// Baselines returns a copy of the per-asset baseline map.
func (v *Validator) Baselines() map[string]float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]float64, len(v.baselines))
	for k, val := range v.baselines {
		out[k] = val
	}
	return out
}
