package models

// HealthResult is one provider probe outcome.
type HealthResult struct {
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ProviderStatus describes one configured source in the status surface.
type ProviderStatus struct {
	Name     string  `json:"name"`
	Enabled  bool    `json:"enabled"`
	Priority int     `json:"priority"`
	Weight   float64 `json:"weight"`
}

// CacheStats is the price cache's counters.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// AggregatorStats is the aggregator portion of the status surface.
type AggregatorStats struct {
	Assets       []string   `json:"assets"`
	MinSources   int        `json:"min_sources"`
	Cache        CacheStats `json:"cache"`
	LastCycleAt  int64      `json:"last_cycle_at,omitempty"`
	CyclesRun    uint64     `json:"cycles_run"`
	CyclesFailed uint64     `json:"cycles_failed"`
}

// ServiceStatus is the read-only structure polled by an operator.
type ServiceStatus struct {
	Running    bool             `json:"running"`
	Network    string           `json:"network"`
	ContractID string           `json:"contract_id"`
	Providers  []ProviderStatus `json:"providers"`
	Aggregator AggregatorStats  `json:"aggregator"`
}
