package models

// PriceScale is the fixed-point factor for all scaled prices across the
// pipeline and the contract payloads: six fractional digits.
const PriceScale = 1_000_000

// RawPrice is what a provider returns before any validation. Price is the
// real (unscaled) quote; Timestamp is seconds since epoch as reported by the
// source, or stamped locally when the source carries no timestamp.
type RawPrice struct {
	Asset     string
	Price     float64
	Timestamp int64
	Source    string
}

// ValidatedPrice is the only price form accepted downstream of the
// validator. Price is scaled by PriceScale.
type ValidatedPrice struct {
	Asset      string
	Price      int64
	Timestamp  int64
	Source     string
	Confidence int
}

// AggregatedPrice is one asset's combined price for a cycle. Sources is
// empty when the price was served from cache.
type AggregatedPrice struct {
	Asset      string
	Price      int64
	Sources    []ValidatedPrice
	Timestamp  int64
	Confidence int
}

// SubmissionRecord reports the outcome of pushing one aggregated price
// on-chain. TxHash is set on success, Error on terminal failure.
type SubmissionRecord struct {
	Asset     string
	Price     int64
	Timestamp int64
	Success   bool
	Attempts  int
	TxHash    string
	Error     string
}
