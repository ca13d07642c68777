package metrics

import "time"

// Operation label values.
const (
	OpLookup      = "lookup"
	OpAppend      = "append"
	OpCount       = "count"
	OpGetByIndex  = "get_by_index"
	OpListAll     = "list_all"
	OpHealth      = "health"
	OpResolve     = "resolve"
	OpResolveLive = "resolve_fresh"
	OpSubmit      = "submit"
	OpDetect      = "detect"
	OpDecide      = "decide"
	OpLink        = "link"
)

// Status label values shared by several collectors.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Dedup tiers.
const (
	TierCache  = "cache"
	TierLedger = "ledger"
	TierMiss   = "miss"
	TierError  = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout bounds graceful shutdown of the HTTP listener.
const ShutdownTimeout = 5 * time.Second
